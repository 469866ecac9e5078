//go:build !linux

package backend

import (
	"errors"

	"github.com/smazurov/isocam/pkg/iidc"
)

func openUVC(Config) (iidc.Bus, error) {
	return nil, errors.New("the uvc backend needs Linux")
}
