package account

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/pbkdf2"
)

const (
	pbkdf2DKLen = 32
	pbkdf2C     = 262144

	kdfPBKDF2       = "pbkdf2"
	prfHmacSha256   = "hmac-sha256"
	cipherAes128Ctr = "aes-128-ctr"
)

var ErrWrongPassword = errors.New("wrong password")

type cipherParams struct {
	IV string `json:"iv"`
}

type kdfParams struct {
	C     int    `json:"c"`
	DKLen int    `json:"dklen"`
	Prf   string `json:"prf"`
	Salt  string `json:"salt"`
}

// Crypto is the encrypted key section of a Web3 secret storage file.
type Crypto struct {
	Cipher       string       `json:"cipher"`
	CipherParams cipherParams `json:"cipherparams"`
	CipherText   string       `json:"ciphertext"`
	KDF          string       `json:"kdf"`
	KDFParams    kdfParams    `json:"kdfparams"`
	MAC          string       `json:"mac"`
}

// EncryptKey encrypts key with password using a random salt and IV.
func EncryptKey(key, password []byte) (*Crypto, error) {
	salt := make([]byte, 32)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to read salt: %w", err)
	}
	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("failed to read iv: %w", err)
	}
	return EncryptKeyWithParams(key, password, salt, iv, pbkdf2C)
}

// EncryptKeyWithParams encrypts key with fixed salt, IV and iteration count.
func EncryptKeyWithParams(key, password, salt, iv []byte, iterations int) (*Crypto, error) {
	if len(iv) != aes.BlockSize {
		return nil, fmt.Errorf("iv must be %d bytes", aes.BlockSize)
	}
	derived := pbkdf2.Key(password, salt, iterations, pbkdf2DKLen, sha256.New)
	ciphertext, err := aesCTR(derived[:16], iv, key)
	if err != nil {
		return nil, err
	}
	return &Crypto{
		Cipher:       cipherAes128Ctr,
		CipherParams: cipherParams{IV: hex.EncodeToString(iv)},
		CipherText:   hex.EncodeToString(ciphertext),
		KDF:          kdfPBKDF2,
		KDFParams: kdfParams{
			C:     iterations,
			DKLen: pbkdf2DKLen,
			Prf:   prfHmacSha256,
			Salt:  hex.EncodeToString(salt),
		},
		MAC: hex.EncodeToString(mac(derived, ciphertext)),
	}, nil
}

// DecryptKey returns the plain key, or ErrWrongPassword when the MAC does not match.
func (c *Crypto) DecryptKey(password []byte) ([]byte, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to encode keystore crypto: %w", err)
	}
	var cj keystore.CryptoJSON
	if err := json.Unmarshal(raw, &cj); err != nil {
		return nil, fmt.Errorf("failed to decode keystore crypto: %w", err)
	}
	if c.KDF != kdfPBKDF2 {
		return nil, fmt.Errorf("unsupported kdf %s", c.KDF)
	}
	key, err := keystore.DecryptDataV3(cj, string(password))
	if errors.Is(err, keystore.ErrDecrypt) {
		return nil, ErrWrongPassword
	}
	return key, err
}

func mac(derived, ciphertext []byte) []byte {
	return crypto.Keccak256(derived[16:32], ciphertext)
}

func aesCTR(key, iv, in []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	out := make([]byte, len(in))
	cipher.NewCTR(block, iv).XORKeyStream(out, in)
	return out, nil
}
