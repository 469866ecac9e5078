package camera

import (
	"fmt"
	"io"
	"text/tabwriter"
)

// Dump writes a human-readable report of the session for debugging.
func (s *Session) Dump(w io.Writer) error {
	if err := s.alive(); err != nil {
		return err
	}
	id := s.cam.Identity()
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintf(tw, "session\t%s\n", s.id)
	fmt.Fprintf(tw, "camera\t%s (%s %s)\n", id, id.Vendor, id.Model)
	fmt.Fprintf(tw, "state\t%s\n", s.state)
	fmt.Fprintf(tw, "regime\t%s, mode %s\n", s.regime, s.mode)
	if s.regime == RegimeScalable {
		fmt.Fprintf(tw, "packet size\t%d bytes (unit %d, max %d)\n", s.packet, s.scalable.UnitBytes, s.scalable.MaxBytes)
	}
	fmt.Fprintf(tw, "vendor family\t%s\n", s.family.Name())
	fmt.Fprintf(tw, "frames\t%d\n", s.frames)
	fmt.Fprintf(tw, "locked\t%t\n", s.locked != nil)
	fmt.Fprintf(tw, "reconnects\t%d\n", s.reconnects)
	if !s.dmaTime.IsZero() {
		fmt.Fprintf(tw, "last dma\t%s\n", s.dmaTime.Format("15:04:05.000000"))
	}

	fmt.Fprintln(tw, "\t")
	if s.config != nil {
		cfg := s.config
		source := cfg.Source
		if source == "" {
			source = "built-in default"
		}
		fmt.Fprintf(tw, "config\t%s\n", source)
		fmt.Fprintf(tw, "  bus speed\t%d Mb/s (%g packets/Mb/s)\n", cfg.BusSpeed, cfg.PacketsPerMbps)
		fmt.Fprintf(tw, "  max packets\t%d\n", cfg.MaxPackets)
		fmt.Fprintf(tw, "  min pixels\t%d\n", cfg.MinPixels)
		fmt.Fprintf(tw, "  timing\ttrigger %gs, quantum %gs, offset %gs, line %gs, transmit %gs\n",
			cfg.TriggerSetup, cfg.ExposureQuantum, cfg.ExposureOffset, cfg.LineTime, cfg.TransmitSetup)
		fmt.Fprintf(tw, "  flags\toverlap=%t drop_frames=%t timestamp_includes_transmit=%t\n",
			cfg.Overlap, cfg.DropFrames, cfg.TimestampIncludesTransmit)
	}

	fmt.Fprintln(tw, "\t")
	c := s.caps
	fmt.Fprintf(tw, "capabilities\tsingle_shot=%t gamma=%t (max %d) color_correction=%t tiling=%s\n",
		c.SingleShot, c.Gamma, c.GammaMax, c.ColorCorrection, c.Tiling)

	fmt.Fprintln(tw, "\t")
	st := s.shadow
	fmt.Fprintf(tw, "buffers\t%d\n", st.Buffers)
	fmt.Fprintf(tw, "roi\t%dx%d+%d+%d\n", st.ROI.Width, st.ROI.Height, st.ROI.Left, st.ROI.Top)
	fmt.Fprintf(tw, "coding\t%s\n", st.Coding)
	fmt.Fprintf(tw, "frame rate\t%.3f fps\n", st.FrameRate)
	fmt.Fprintf(tw, "shutter\t%.6f s\n", st.Shutter)
	fmt.Fprintf(tw, "gain\t%.4f\n", st.Gain)
	fmt.Fprintf(tw, "brightness\t%.4f\n", st.Brightness)
	fmt.Fprintf(tw, "white balance\t%.4f %.4f\n", st.WhiteBalance[0], st.WhiteBalance[1])
	fmt.Fprintf(tw, "gamma\t%t\n", st.Gamma)
	fmt.Fprintf(tw, "color correction\t%t %v\n", st.ColorCorrection, st.ColorCoefficients)
	fmt.Fprintf(tw, "trigger\texternal=%t active_high=%t\n", st.ExternalTrigger, st.TriggerPolarity)
	fmt.Fprintf(tw, "run state\t%s\n", s.runState())
	fmt.Fprintf(tw, "shadow\t%t\n", st.Shadow)
	return tw.Flush()
}
