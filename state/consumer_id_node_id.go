// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package state

import (
	"fmt"

	"github.com/luxfi/ids"
)

// consumerIDNodeID = [consumerID] + [nodeID]
const consumerIDNodeIDEntryLength = ids.IDLen + ids.NodeIDLen

var errUnexpectedConsumerIDNodeIDLength = fmt.Errorf("expected consumerID+nodeID entry length %d", consumerIDNodeIDEntryLength)

type consumerIDNodeID struct {
	consumerID ids.ID
	nodeID     ids.NodeID
}

func (c *consumerIDNodeID) Marshal() []byte {
	data := make([]byte, consumerIDNodeIDEntryLength)
	copy(data, c.consumerID[:])
	copy(data[ids.IDLen:], c.nodeID[:])
	return data
}

func (c *consumerIDNodeID) Unmarshal(data []byte) error {
	if len(data) != consumerIDNodeIDEntryLength {
		return errUnexpectedConsumerIDNodeIDLength
	}

	copy(c.consumerID[:], data)
	copy(c.nodeID[:], data[ids.IDLen:])
	return nil
}
