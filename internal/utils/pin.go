package utils

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// ErrMalformedPINHash 存储的PIN哈希无法解析
var ErrMalformedPINHash = errors.New("malformed pin hash")

// PINConfig Argon2id 参数
type PINConfig struct {
	Time    uint32
	Memory  uint32 // KiB
	Threads uint8
	KeyLen  uint32
}

// DefaultPINConfig 默认参数
var DefaultPINConfig = &PINConfig{
	Time:    1,
	Memory:  64 * 1024,
	Threads: 4,
	KeyLen:  32,
}

const pinSaltLen = 16

var b64 = base64.RawStdEncoding

// HashPIN 哈希购买PIN码
func HashPIN(pin string) (string, error) {
	return HashPINWithConfig(pin, DefaultPINConfig)
}

// HashPINWithConfig 按 PHC 格式输出: $argon2id$v=19$m=..,t=..,p=..$salt$hash
func HashPINWithConfig(pin string, cfg *PINConfig) (string, error) {
	salt := make([]byte, pinSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	key := argon2.IDKey([]byte(pin), salt, cfg.Time, cfg.Memory, cfg.Threads, cfg.KeyLen)
	return strings.Join([]string{
		"",
		"argon2id",
		fmt.Sprintf("v=%d", argon2.Version),
		fmt.Sprintf("m=%d,t=%d,p=%d", cfg.Memory, cfg.Time, cfg.Threads),
		b64.EncodeToString(salt),
		b64.EncodeToString(key),
	}, "$"), nil
}

// VerifyPIN 校验PIN码，哈希格式错误时返回 ErrMalformedPINHash
func VerifyPIN(pin, encoded string) (bool, error) {
	cfg, salt, key, err := decodePINHash(encoded)
	if err != nil {
		return false, err
	}
	got := argon2.IDKey([]byte(pin), salt, cfg.Time, cfg.Memory, cfg.Threads, cfg.KeyLen)
	return subtle.ConstantTimeCompare(key, got) == 1, nil
}

func decodePINHash(encoded string) (*PINConfig, []byte, []byte, error) {
	fields := strings.Split(encoded, "$")
	if len(fields) != 6 || fields[0] != "" || fields[1] != "argon2id" {
		return nil, nil, nil, ErrMalformedPINHash
	}

	var version int
	if _, err := fmt.Sscanf(fields[2], "v=%d", &version); err != nil || version != argon2.Version {
		return nil, nil, nil, fmt.Errorf("%w: version %q", ErrMalformedPINHash, fields[2])
	}

	cfg := &PINConfig{}
	if _, err := fmt.Sscanf(fields[3], "m=%d,t=%d,p=%d", &cfg.Memory, &cfg.Time, &cfg.Threads); err != nil {
		return nil, nil, nil, fmt.Errorf("%w: %v", ErrMalformedPINHash, err)
	}

	salt, err := b64.DecodeString(fields[4])
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: salt", ErrMalformedPINHash)
	}
	key, err := b64.DecodeString(fields[5])
	if err != nil || len(key) == 0 {
		return nil, nil, nil, fmt.Errorf("%w: key", ErrMalformedPINHash)
	}
	cfg.KeyLen = uint32(len(key))
	return cfg, salt, key, nil
}

// IsValidPINFormat 4到8位数字
func IsValidPINFormat(pin string) bool {
	if n := len(pin); n < 4 || n > 8 {
		return false
	}
	return strings.Trim(pin, "0123456789") == ""
}
