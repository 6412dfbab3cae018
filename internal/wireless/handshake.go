package wireless

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// HandshakeObservation summarizes the EAPOL-Key exchange seen between
// one access point and one station. Messages holds the distinct 4-way
// message numbers observed, in order.
type HandshakeObservation struct {
	BSSID    string
	Station  string
	Messages []int
	Complete bool
}

// VerifyCapture re-parses a finished capture file and reports every
// AP/station pair with EAPOL-Key traffic. A capture with no EAPOL at
// all yields an empty slice, not an error: absence of a handshake is a
// result the capture module acts on, only an unreadable file fails.
func VerifyCapture(path string) ([]HandshakeObservation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("wireless: open capture: %w", err)
	}
	defer f.Close()
	return readHandshakes(f)
}

func readHandshakes(r io.Reader) ([]HandshakeObservation, error) {
	reader, err := pcapgo.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("wireless: read capture header: %w", err)
	}

	type pair struct{ bssid, station string }
	seen := make(map[pair]map[int]bool)
	var order []pair

	for {
		data, _, err := reader.ReadPacketData()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Captures are routinely truncated mid-packet when the
			// capture tool is killed; keep what decoded so far.
			break
		}

		pkt := gopacket.NewPacket(data, reader.LinkType(), gopacket.Default)
		key, ok := pkt.Layer(layers.LayerTypeEAPOLKey).(*layers.EAPOLKey)
		if !ok || key.KeyType != layers.EAPOLKeyTypePairwise {
			continue
		}
		msg := classifyKeyMessage(key)
		if msg == 0 {
			continue
		}
		src, dst, ok := frameEndpoints(pkt)
		if !ok {
			continue
		}

		// M1 and M3 travel AP to station, M2 and M4 the reverse.
		p := pair{bssid: src, station: dst}
		if msg == 2 || msg == 4 {
			p = pair{bssid: dst, station: src}
		}

		if seen[p] == nil {
			seen[p] = make(map[int]bool)
			order = append(order, p)
		}
		seen[p][msg] = true
	}

	var observations []HandshakeObservation
	for _, p := range order {
		msgs := seen[p]
		var numbers []int
		for n := 1; n <= 4; n++ {
			if msgs[n] {
				numbers = append(numbers, n)
			}
		}
		observations = append(observations, HandshakeObservation{
			BSSID:    p.bssid,
			Station:  p.station,
			Messages: numbers,
			// M1+M2 yields both nonces and a MIC to attack; M2+M3
			// works the same way from the other side.
			Complete: (msgs[1] && msgs[2]) || (msgs[2] && msgs[3]),
		})
	}
	sort.Slice(observations, func(i, j int) bool {
		if observations[i].BSSID != observations[j].BSSID {
			return observations[i].BSSID < observations[j].BSSID
		}
		return observations[i].Station < observations[j].Station
	})
	return observations, nil
}

// classifyKeyMessage maps EAPOL-Key flag combinations to their 4-way
// handshake position. Unrecognized combinations return 0.
func classifyKeyMessage(key *layers.EAPOLKey) int {
	switch {
	case key.KeyACK && !key.KeyMIC:
		return 1
	case key.KeyACK && key.KeyMIC:
		// Install is set on RSN message 3; old WPA gear omits it.
		return 3
	case key.KeyMIC && !key.Secure:
		return 2
	case key.KeyMIC && key.Secure:
		return 4
	default:
		return 0
	}
}

// frameEndpoints extracts transmitter and receiver hardware addresses.
// Monitor mode captures carry 802.11 frames; airodump can also be fed
// Ethernet-encapsulated captures from other sources.
func frameEndpoints(pkt gopacket.Packet) (src, dst string, ok bool) {
	if dot11, found := pkt.Layer(layers.LayerTypeDot11).(*layers.Dot11); found {
		return dot11.Address2.String(), dot11.Address1.String(), true
	}
	if eth, found := pkt.Layer(layers.LayerTypeEthernet).(*layers.Ethernet); found {
		return eth.SrcMAC.String(), eth.DstMAC.String(), true
	}
	return "", "", false
}

// CompleteHandshake reports whether any observation for bssid (or any
// network when bssid is empty) is complete enough to crack.
func CompleteHandshake(observations []HandshakeObservation, bssid string) (HandshakeObservation, bool) {
	want := lockKey(bssid)
	for _, obs := range observations {
		if !obs.Complete {
			continue
		}
		if want == "" || obs.BSSID == want {
			return obs, true
		}
	}
	return HandshakeObservation{}, false
}
