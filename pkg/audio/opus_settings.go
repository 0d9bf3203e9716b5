package audio

import (
	"os"
	"strconv"
	"strings"

	"github.com/saker-ai/speech-uplink/pkg/audio/opusx"
)

// OpusOptions tunes encoders created for the uplink. Zero values keep libopus defaults.
type OpusOptions struct {
	Bitrate        int
	Complexity     int
	VBR            *bool
	VBRConstraint  *bool
	FEC            *bool
	DTX            *bool
	PacketLossPerc int
	MaxBandwidth   string
}

// opusOptionsKey is the comparable form of OpusOptions used to key encoder pools.
// Tri-state fields are -1 unset, 0 false, 1 true.
type opusOptionsKey struct {
	bitrate        int
	complexity     int
	vbr            int8
	vbrConstraint  int8
	fec            int8
	dtx            int8
	packetLossPerc int
	maxBandwidth   string
}

func (o OpusOptions) key() opusOptionsKey {
	return opusOptionsKey{
		bitrate:        max(o.Bitrate, 0),
		complexity:     max(o.Complexity, 0),
		vbr:            triState(o.VBR),
		vbrConstraint:  triState(o.VBRConstraint),
		fec:            triState(o.FEC),
		dtx:            triState(o.DTX),
		packetLossPerc: max(o.PacketLossPerc, 0),
		maxBandwidth:   strings.ToLower(strings.TrimSpace(o.MaxBandwidth)),
	}
}

func triState(b *bool) int8 {
	switch {
	case b == nil:
		return -1
	case *b:
		return 1
	default:
		return 0
	}
}

// OpusOptionsFromEnv reads UPLINK_OPUS_* variables.
func OpusOptionsFromEnv() OpusOptions {
	return OpusOptions{
		Bitrate:        getenvInt("UPLINK_OPUS_BITRATE", 0),
		Complexity:     getenvInt("UPLINK_OPUS_COMPLEXITY", 0),
		VBR:            getenvBoolPtr("UPLINK_OPUS_VBR"),
		VBRConstraint:  getenvBoolPtr("UPLINK_OPUS_VBR_CONSTRAINT"),
		FEC:            getenvBoolPtr("UPLINK_OPUS_FEC"),
		DTX:            getenvBoolPtr("UPLINK_OPUS_DTX"),
		PacketLossPerc: getenvInt("UPLINK_OPUS_PACKET_LOSS_PERC", 0),
		MaxBandwidth:   strings.ToLower(strings.TrimSpace(os.Getenv("UPLINK_OPUS_MAX_BANDWIDTH"))),
	}
}

// OpusSupportsRate reports whether opus can encode at sampleRate.
func OpusSupportsRate(sampleRate int) bool {
	switch sampleRate {
	case 8000, 12000, 16000, 24000, 48000:
		return true
	default:
		return false
	}
}

func (o OpusOptions) apply(enc *opusx.Encoder) {
	if enc == nil {
		return
	}
	if o.Bitrate > 0 {
		_ = enc.SetBitrate(o.Bitrate)
	}
	if o.Complexity > 0 {
		_ = enc.SetComplexity(o.Complexity)
	}
	if o.VBR != nil {
		_ = enc.SetVBR(*o.VBR)
	}
	if o.VBRConstraint != nil {
		_ = enc.SetVBRConstraint(*o.VBRConstraint)
	}
	if o.FEC != nil {
		_ = enc.SetInBandFEC(*o.FEC)
	}
	if o.DTX != nil {
		_ = enc.SetDTX(*o.DTX)
	}
	if o.PacketLossPerc > 0 {
		_ = enc.SetPacketLossPerc(o.PacketLossPerc)
	}
	if bw := parseOpusBandwidth(o.MaxBandwidth); bw != nil {
		_ = enc.SetMaxBandwidth(*bw)
	}
}

// OpusBackend names the compiled opus implementation.
func OpusBackend() string {
	return opusx.Backend()
}

func parseOpusBandwidth(v string) *opusx.Bandwidth {
	var bw opusx.Bandwidth
	switch v {
	case "narrowband", "nb":
		bw = opusx.Narrowband
	case "mediumband", "mb":
		bw = opusx.Mediumband
	case "wideband", "wb":
		bw = opusx.Wideband
	case "superwideband", "swb":
		bw = opusx.SuperWideband
	case "fullband", "fb":
		bw = opusx.Fullband
	default:
		return nil
	}
	return &bw
}

func getenvInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getenvBoolPtr(key string) *bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil
	}
	return &b
}
