package lib

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/yeqown/go-qrcode"
)

const QR_DATA_URL_PREFIX = "data:image/png;base64,"

// RenderQRCode encodes text as a PNG QR code and returns it as a data URL.
func RenderQRCode(text string) (string, error) {
	qrc, err := qrcode.New(text, qrcode.WithBuiltinImageEncoder(qrcode.PNG_FORMAT), qrcode.WithQRWidth(8))
	if err != nil {
		return "", fmt.Errorf("could not encode qrcode: %w", err)
	}
	var buf bytes.Buffer
	if err := qrc.SaveTo(&buf); err != nil {
		return "", fmt.Errorf("could not render qrcode: %w", err)
	}
	return QR_DATA_URL_PREFIX + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// QRCodeCache keeps rendered pass codes in redis. The cache is never authoritative:
// a miss, an error or a nil client all fall back to rendering.
type QRCodeCache struct {
	rd  *redis.Client
	ttl time.Duration
}

func NewQRCodeCache(rd *redis.Client, ttl time.Duration) *QRCodeCache {
	return &QRCodeCache{rd: rd, ttl: ttl}
}

func qrCodeKey(passID string) string {
	return fmt.Sprintf("pass:%s:qrcode", passID)
}

func (c *QRCodeCache) QRCode(ctx context.Context, passID string, payload string) (string, error) {
	if c == nil || c.rd == nil {
		return RenderQRCode(payload)
	}
	key := qrCodeKey(passID)
	content, err := c.rd.Get(ctx, key).Result()
	if err == nil && content != "" {
		return content, nil
	}
	if err != nil && !errors.Is(err, redis.Nil) {
		log.Printf("Error reading from cache: %s\n", err.Error())
	}
	dataURL, err := RenderQRCode(payload)
	if err != nil {
		return "", err
	}
	if err := c.rd.SetEx(ctx, key, dataURL, c.ttl).Err(); err != nil {
		log.Printf("Could not cache qrcode for %s: %s\n", passID, err.Error())
	}
	return dataURL, nil
}
