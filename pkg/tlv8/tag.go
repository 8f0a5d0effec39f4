package tlv8

import "fmt"

// Tag identifies the type of a TLV8 record.
type Tag byte

// Pairing tags.
const (
	TagMethod        Tag = 0x00
	TagIdentifier    Tag = 0x01
	TagSalt          Tag = 0x02
	TagPublicKey     Tag = 0x03
	TagProof         Tag = 0x04
	TagEncryptedData Tag = 0x05
	TagState         Tag = 0x06
	TagError         Tag = 0x07
	TagRetryDelay    Tag = 0x08
	TagCertificate   Tag = 0x09
	TagSignature     Tag = 0x0A
	TagPermissions   Tag = 0x0B
	TagFragmentData  Tag = 0x0C
	TagFragmentLast  Tag = 0x0D
	TagFlags         Tag = 0x13
	TagSeparator     Tag = 0xFF
)

// MaxChunk is the largest value fragment a single record can carry.
const MaxChunk = 255

// maxLen holds the per-tag limit on a re-assembled value.
var maxLen = map[Tag]int{
	TagMethod:        1,
	TagIdentifier:    64,
	TagSalt:          16,
	TagPublicKey:     384,
	TagProof:         64,
	TagEncryptedData: 1024,
	TagState:         1,
	TagError:         1,
	TagRetryDelay:    8,
	TagCertificate:   3072,
	TagSignature:     64,
	TagPermissions:   1,
	TagFragmentData:  1024,
	TagFragmentLast:  1024,
	TagFlags:         4,
	TagSeparator:     0,
}

// Known reports whether t belongs to the pairing tag set.
func (t Tag) Known() bool {
	_, ok := maxLen[t]
	return ok
}

// MaxLen returns the maximum value length for t, or -1 for unknown tags.
func (t Tag) MaxLen() int {
	if n, ok := maxLen[t]; ok {
		return n
	}
	return -1
}

// String returns the tag name.
func (t Tag) String() string {
	switch t {
	case TagMethod:
		return "Method"
	case TagIdentifier:
		return "Identifier"
	case TagSalt:
		return "Salt"
	case TagPublicKey:
		return "PublicKey"
	case TagProof:
		return "Proof"
	case TagEncryptedData:
		return "EncryptedData"
	case TagState:
		return "State"
	case TagError:
		return "Error"
	case TagRetryDelay:
		return "RetryDelay"
	case TagCertificate:
		return "Certificate"
	case TagSignature:
		return "Signature"
	case TagPermissions:
		return "Permissions"
	case TagFragmentData:
		return "FragmentData"
	case TagFragmentLast:
		return "FragmentLast"
	case TagFlags:
		return "Flags"
	case TagSeparator:
		return "Separator"
	default:
		return fmt.Sprintf("Tag(0x%02X)", byte(t))
	}
}
