package usecase

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyUpload       = errors.New("no file selected")
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	ErrUploadTooLarge    = errors.New("upload exceeds size limit")
	ErrInsufficientDisk  = errors.New("insufficient disk space")
	ErrStorage           = errors.New("storage error")
)

func wrapStorage(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrStorage, err)
}
