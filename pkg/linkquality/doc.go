// Package linkquality converts radio measurements into Thread link margins,
// link quality classes and link costs.
//
// All functions are pure. Link margins are carried in two forms: the raw
// margin in dB above the receiver noise floor (uint8), and a scaled form
// (raw << MarginScaling) used where averaging needs sub-dB precision.
//
// # Quality classes
//
//	margin > 20 dB  -> Quality20dB (3)
//	margin > 10 dB  -> Quality10dB (2)
//	margin >  2 dB  -> Quality2dB  (1)
//	otherwise       -> QualityBad  (0)
//
// # Link cost
//
// Route cost contributed by a single hop, per quality class: 1, 2, 4 and
// MaxLinkCost for a bad link.
package linkquality
