package backend

import (
	"github.com/smazurov/isocam/pkg/iidc"
	"github.com/smazurov/isocam/pkg/linuxav/uvc"
)

func openUVC(cfg Config) (iidc.Bus, error) {
	return uvc.NewBus(uvc.WithDevices(cfg.Devices...), uvc.WithLogger(cfg.Logger)), nil
}
