package crypto

// NonceSize is the ChaCha20-Poly1305 nonce length.
const NonceSize = 12

// Fixed nonce labels for the encrypted pairing sub-messages.
const (
	NoncePSMsg05 = "PS-Msg05"
	NoncePSMsg06 = "PS-Msg06"
	NoncePVMsg02 = "PV-Msg02"
	NoncePVMsg03 = "PV-Msg03"
)

// PairingNonce builds the 12-byte nonce for a pairing sub-message: four
// zero bytes followed by the 8-byte label.
func PairingNonce(label string) []byte {
	nonce := make([]byte, NonceSize)
	if len(label) > 8 {
		label = label[:8]
	}
	copy(nonce[NonceSize-len(label):], label)
	return nonce
}
