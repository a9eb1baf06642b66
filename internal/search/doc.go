// Package search answers the two lookup shapes the agent knows: find mail
// from a similar sender, or find mail about a similar topic. Each shape
// queries its own vector collection and applies the optional year and
// substring filters locally, after the similarity ranking, so filters never
// change what the index stores. Result caps are hard limits.
package search
