// Package fusion implements fusion router networks: grid-connected routers that
// share a warmup level, produce neutrons from heat, and hand them to adjacent
// consumers through one round-robin dispatch list per network.
//
// A Graph is an arena. It owns every Node (keyed by grid position) and every
// Network (keyed by NetworkID). Nodes only hold the ID of their network, and the
// network's member list is authoritative.
//
// Graph is not safe for concurrent use. The world loop owns it and defers
// topology repairs (Refresh, RebuildOutputs) to the end of each tick.
package fusion
