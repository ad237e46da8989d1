package model

import "time"

// Challenge is a pending proposal from one player to race another. It only
// exists while proposed; accept, decline, cancel and expiry all delete it.
type Challenge struct {
	UUID             string    `json:"uuid"`
	SenderID         string    `json:"senderId"`
	SenderUsername   string    `json:"senderUsername"`
	ReceiverID       string    `json:"receiverId"`
	ReceiverUsername string    `json:"receiverUsername"`
	CreatedAt        time.Time `json:"createdAt"`
}

// Counterpart returns the other party of the challenge as seen from playerID.
func (c Challenge) Counterpart(playerID string) string {
	if c.SenderID == playerID {
		return c.ReceiverID
	}
	return c.SenderID
}
