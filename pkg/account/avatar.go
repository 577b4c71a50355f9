package account

import (
	"bytes"
	"image"
	_ "image/jpeg"
	_ "image/png"
)

const maxAvatarDimension = 256

// Avatar is a decoded upload handed in by the boundary layer.
type Avatar struct {
	Data []byte
}

// validateAvatar checks the upload is a jpeg or png no larger than
// 256x256 and returns the detected format for the object content type.
func validateAvatar(a Avatar) (format string, err error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(a.Data))
	if err != nil {
		return "", invalid("avatar", "must be a jpeg or png image")
	}
	if format != "jpeg" && format != "png" {
		return "", invalid("avatar", "must be a jpeg or png image")
	}
	if cfg.Width > maxAvatarDimension || cfg.Height > maxAvatarDimension {
		return "", invalid("avatar", "dimensions may not exceed 256x256")
	}
	return format, nil
}
