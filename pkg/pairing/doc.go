// Package pairing implements the accessory side of HomeKit pairing: the
// pair-setup and pair-verify exchanges and pairings management. It also
// provides a controller-side Client that drives the same exchanges.
//
// Pair-setup binds a controller to the accessory using the setup code:
//
//	Controller                                   Accessory
//	    |---- M1 State=1 Method=0 ---------------->|  SRP server, B
//	    |<--- M2 State=2 PublicKey=B Salt ---------|
//	    |---- M3 State=3 PublicKey=A Proof=M1 ---->|  K, verify M1
//	    |<--- M4 State=4 Proof=M2 -----------------|
//	    |---- M5 State=5 EncryptedData ----------->|  controller LTPK, signature
//	    |<--- M6 State=6 EncryptedData ------------|  accessory LTPK, signature
//
// Pair-verify proves both long-term keys again and yields the shared
// secret from which the connection's session keys are derived:
//
//	    |---- M1 State=1 PublicKey --------------->|  X25519, sign
//	    |<--- M2 State=2 PublicKey EncryptedData --|
//	    |---- M3 State=3 EncryptedData ----------->|  check controller signature
//	    |<--- M4 State=4 --------------------------|  session established
//
// Protocol failures are reported inside the TLV response with an Error
// tag. A Go error returned by a handler means the request itself was
// unusable (ErrMalformed) or arrived on the wrong kind of connection
// (ErrNotVerified); the transport maps those to HTTP status codes.
package pairing
