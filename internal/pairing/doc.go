// Package pairing controls the secondary BLE pairing channel.
//
// The channel is a separate bridge daemon supervised through the process
// package. The link fallback enables it when no saved network connects;
// an operator can also open a pairing session, which takes the station
// link down and pauses messaging until the session ends or expires. A link
// that was connected when the session began is reconnected afterwards.
package pairing
