package utils

import (
	"errors"
	"os"
)

func PathExists(p string) bool {
	_, err := os.Stat(p)
	return !errors.Is(err, os.ErrNotExist)
}
