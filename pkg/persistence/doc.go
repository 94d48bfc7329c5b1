// Package persistence saves the attach state a node needs to resume after
// a reset: per interface its short address, leader data, parent and the
// child records of a router. A restored parent lets the node synchronize
// with it directly instead of running a full parent discovery.
package persistence
