package lavalink

import "math"

// infinitePenalty ranks a node that cannot take players behind every node
// that can.
const infinitePenalty = math.MaxInt32

// Penalty computes the load score used to rank this node for selection.
// Lower is more eligible. A node that is not connected scores infinitePenalty
// so it is never picked while a connected alternative exists.
func (n *Node) Penalty() int {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if n.state != StateConnected {
		return infinitePenalty
	}

	penalty := int(n.boundPlayers)

	stats := n.stats
	if stats == nil {
		return penalty
	}

	// Convex in system load: roughly +10 at 50% and +120 at full load, so a
	// busy node falls out of rotation well before it saturates.
	if stats.CPU.SystemLoad > 0 {
		penalty += int(math.Round(math.Pow(1.05, 100*stats.CPU.SystemLoad)*10 - 10))
	}

	penalty += stats.Frames.Deficit
	penalty += 2 * stats.Frames.Nulled

	return penalty
}
