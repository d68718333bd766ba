package entity

import (
	"fmt"
	"strings"
)

const (
	roomSeparator = "_"
	maxIDLength   = 128
)

// RoomKey addresses the broadcast group of one conversation: buyerId_sellerId_productId.
type RoomKey string

// NewRoomKey is the only way to build a room address. Ids are validated so that
// the key can be split back into the same three parts.
func NewRoomKey(buyerID, sellerID, productID string) (RoomKey, error) {
	for _, id := range []string{buyerID, sellerID, productID} {
		if err := ValidateID(id); err != nil {
			return "", err
		}
	}
	return RoomKey(buyerID + roomSeparator + sellerID + roomSeparator + productID), nil
}

// ParseRoomKey splits a client-supplied room address.
func ParseRoomKey(s string) (RoomKey, error) {
	parts := strings.Split(s, roomSeparator)
	if len(parts) != 3 {
		return "", fmt.Errorf("room %q must have the form buyer_seller_product", s)
	}
	return NewRoomKey(parts[0], parts[1], parts[2])
}

func (k RoomKey) String() string { return string(k) }

// Parts returns buyer, seller and product ids. Only valid for keys built by NewRoomKey or ParseRoomKey.
func (k RoomKey) Parts() (buyerID, sellerID, productID string) {
	parts := strings.SplitN(string(k), roomSeparator, 3)
	if len(parts) != 3 {
		return "", "", ""
	}
	return parts[0], parts[1], parts[2]
}

// Includes reports whether userID is the buyer or the seller of the room.
func (k RoomKey) Includes(userID string) bool {
	buyerID, sellerID, _ := k.Parts()
	return userID != "" && (userID == buyerID || userID == sellerID)
}

// ValidateID checks an identifier used in session triples and room keys.
func ValidateID(id string) error {
	switch {
	case id == "":
		return fmt.Errorf("id is empty")
	case len(id) > maxIDLength:
		return fmt.Errorf("id is longer than %d characters", maxIDLength)
	case strings.TrimSpace(id) != id:
		return fmt.Errorf("id %q has surrounding whitespace", id)
	case strings.ContainsAny(id, roomSeparator+"/"):
		return fmt.Errorf("id %q contains a reserved character", id)
	}
	return nil
}
