package sipua

import (
	"slices"
	"strconv"

	"braces.dev/errtrace"
	"github.com/pion/sdp/v3"

	"github.com/ghettovoice/softphone/internal/errorutil"
)

// Static and dynamic payload types offered by the user agent.
const (
	PayloadPCMU           uint8 = 0
	PayloadPCMA           uint8 = 8
	PayloadTelephoneEvent uint8 = 101
)

// ErrNoCodec is returned when the remote offer has no codec in common.
const ErrNoCodec errorutil.Error = "no common codec"

var rtpmaps = map[uint8]string{
	PayloadPCMU:           "PCMU/8000",
	PayloadPCMA:           "PCMA/8000",
	PayloadTelephoneEvent: "telephone-event/8000",
}

// Media is the audio stream described by a session description.
type Media struct {
	Host    string
	Port    int
	Payload uint8
	DTMF    bool
	// EventPayload is the telephone-event payload type when DTMF is set.
	EventPayload uint8
}

// BuildOffer creates an audio offer of PCMU, PCMA and RFC 4733 events at host:port.
func BuildOffer(host string, port int, sessID uint64) ([]byte, error) {
	return errtrace.Wrap2(marshalSession(host, port, sessID, []uint8{PayloadPCMU, PayloadPCMA, PayloadTelephoneEvent}, int(PayloadTelephoneEvent)))
}

// BuildAnswer answers offer with the first offered codec the user agent supports.
func BuildAnswer(offer []byte, host string, port int, sessID uint64) ([]byte, error) {
	m, err := ParseMedia(offer)
	if err != nil {
		return nil, errtrace.Wrap(err)
	}
	pts, eventPT := []uint8{m.Payload}, -1
	if m.DTMF {
		pts, eventPT = append(pts, m.EventPayload), int(m.EventPayload)
	}
	return errtrace.Wrap2(marshalSession(host, port, sessID, pts, eventPT))
}

// ParseMedia extracts the first audio stream and the codec chosen for it.
func ParseMedia(body []byte) (*Media, error) {
	var sd sdp.SessionDescription
	if err := sd.Unmarshal(body); err != nil {
		return nil, errtrace.Wrap(errorutil.NewInvalidArgumentError(err))
	}

	for _, md := range sd.MediaDescriptions {
		if md.MediaName.Media != "audio" {
			continue
		}

		m := &Media{Port: md.MediaName.Port.Value}
		switch {
		case md.ConnectionInformation != nil && md.ConnectionInformation.Address != nil:
			m.Host = md.ConnectionInformation.Address.Address
		case sd.ConnectionInformation != nil && sd.ConnectionInformation.Address != nil:
			m.Host = sd.ConnectionInformation.Address.Address
		}

		found := false
		for _, f := range md.MediaName.Formats {
			pt, err := strconv.ParseUint(f, 10, 8)
			if err != nil {
				continue
			}
			switch uint8(pt) {
			case PayloadPCMU, PayloadPCMA:
				if !found {
					m.Payload, found = uint8(pt), true
				}
			case PayloadTelephoneEvent:
				if !m.DTMF {
					m.DTMF, m.EventPayload = true, PayloadTelephoneEvent
				}
			default:
				// dynamic telephone-event payloads are matched by rtpmap
				if slices.ContainsFunc(md.Attributes, func(a sdp.Attribute) bool {
					return a.Key == "rtpmap" && a.Value == f+" telephone-event/8000"
				}) && !m.DTMF {
					m.DTMF, m.EventPayload = true, uint8(pt)
				}
			}
		}
		if !found {
			return nil, errtrace.Wrap(ErrNoCodec)
		}
		return m, nil
	}
	return nil, errtrace.Wrap(ErrNoCodec)
}

func marshalSession(host string, port int, sessID uint64, pts []uint8, eventPT int) ([]byte, error) {
	formats := make([]string, 0, len(pts))
	attrs := make([]sdp.Attribute, 0, len(pts)+3)
	for _, pt := range pts {
		f := strconv.Itoa(int(pt))
		formats = append(formats, f)
		rtpmap := rtpmaps[pt]
		if int(pt) == eventPT {
			rtpmap = rtpmaps[PayloadTelephoneEvent]
		}
		attrs = append(attrs, sdp.Attribute{Key: "rtpmap", Value: f + " " + rtpmap})
		if int(pt) == eventPT {
			attrs = append(attrs, sdp.Attribute{Key: "fmtp", Value: f + " 0-16"})
		}
	}
	attrs = append(attrs,
		sdp.Attribute{Key: "ptime", Value: "20"},
		sdp.Attribute{Key: "sendrecv"},
	)

	sd := &sdp.SessionDescription{
		Origin: sdp.Origin{
			Username:       "-",
			SessionID:      sessID,
			SessionVersion: sessID,
			NetworkType:    "IN",
			AddressType:    "IP4",
			UnicastAddress: host,
		},
		SessionName: "softphone",
		ConnectionInformation: &sdp.ConnectionInformation{
			NetworkType: "IN",
			AddressType: "IP4",
			Address:     &sdp.Address{Address: host},
		},
		TimeDescriptions: []sdp.TimeDescription{{Timing: sdp.Timing{}}},
		MediaDescriptions: []*sdp.MediaDescription{{
			MediaName: sdp.MediaName{
				Media:   "audio",
				Port:    sdp.RangedPort{Value: port},
				Protos:  []string{"RTP", "AVP"},
				Formats: formats,
			},
			Attributes: attrs,
		}},
	}
	return errtrace.Wrap2(sd.Marshal())
}
