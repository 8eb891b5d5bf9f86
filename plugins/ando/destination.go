package ando

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"padcast/internal/plugin"
	logx "padcast/pkg/logx"
)

const (
	maxAddressLen = 15
	maxTextLen    = 255
)

// LogFlag is a destination's send policy for one log machine.
type LogFlag uint8

const (
	Off LogFlag = iota
	On
	OnAirOnly
)

func (f LogFlag) String() string {
	switch f {
	case On:
		return "on"
	case OnAirOnly:
		return "onair"
	default:
		return "off"
	}
}

// ParseLogFlag maps yes/on/true to On, onair to OnAirOnly and anything else
// (including no/off/false and the empty string) to Off. Matching ignores
// case but not surrounding whitespace.
func ParseLogFlag(s string) LogFlag {
	switch strings.ToLower(s) {
	case "yes", "on", "true":
		return On
	case "onair":
		return OnAirOnly
	default:
		return Off
	}
}

// Log slots: master, aux1, aux2, then VLog101..VLog120.
const (
	slotMaster = iota
	slotAux1
	slotAux2
	slotVLog1
	numSlots = slotVLog1 + plugin.LogMachineVLogN - plugin.LogMachineVLog1 + 1
)

var (
	slotKeys      [numSlots]string
	slotByMachine [plugin.LogMachineVLogN + 1]int8
)

func init() {
	for i := range slotByMachine {
		slotByMachine[i] = -1
	}
	slotKeys[slotMaster] = "MasterLog"
	slotKeys[slotAux1] = "Aux1Log"
	slotKeys[slotAux2] = "Aux2Log"
	slotByMachine[plugin.LogMachineMain] = slotMaster
	slotByMachine[plugin.LogMachineAux1] = slotAux1
	slotByMachine[plugin.LogMachineAux2] = slotAux2
	for m := plugin.LogMachineVLog1; m <= plugin.LogMachineVLogN; m++ {
		slot := slotVLog1 + m - plugin.LogMachineVLog1
		slotKeys[slot] = fmt.Sprintf("VLog%d", m+1)
		slotByMachine[m] = int8(slot)
	}
}

func logSlot(machine int) (int, bool) {
	if machine < 0 || machine >= len(slotByMachine) {
		return 0, false
	}
	s := slotByMachine[machine]
	return int(s), s >= 0
}

// Destination is one configured ANDO receiver.
type Destination struct {
	Address string
	Port    uint16
	Title   string
	Artist  string
	Album   string
	Label   string
	Logs    [numSlots]LogFlag
}

// Flag returns the policy for machine; unknown machines are Off.
func (d *Destination) Flag(machine int) LogFlag {
	slot, ok := logSlot(machine)
	if !ok {
		return Off
	}
	return d.Logs[slot]
}

func (d *Destination) String() string {
	return fmt.Sprintf("%s:%d", d.Address, d.Port)
}

// ParseDestinations reads [System1], [System2], ... from the argument file
// until the first section without an IpAddress.
func ParseDestinations(host plugin.Host, arg string) []Destination {
	log := host.Logger()
	var out []Destination
	for i := 1; ; i++ {
		section := fmt.Sprintf("System%d", i)
		addr := truncate(host.GetString(arg, section, "IpAddress", ""), maxAddressLen)
		if addr == "" {
			break
		}
		d := Destination{
			Address: addr,
			Port:    parsePort(host.GetInteger(arg, section, "UdpPort", 0)),
			Title:   truncate(host.GetString(arg, section, "Title", ""), maxTextLen),
			Artist:  truncate(host.GetString(arg, section, "Artist", ""), maxTextLen),
			Album:   truncate(host.GetString(arg, section, "Album", ""), maxTextLen),
			Label:   truncate(host.GetString(arg, section, "Label", ""), maxTextLen),
		}
		for slot, key := range slotKeys {
			d.Logs[slot] = ParseLogFlag(host.GetString(arg, section, key, ""))
		}
		out = append(out, d)
		log.Info("configured destination", logx.String("destination", d.String()))
	}
	if len(out) == 0 {
		log.Warn("no ando destinations specified", logx.String("arg", arg))
	}
	return out
}

func parsePort(n int) uint16 {
	if n < 0 || n > 0xffff {
		return 0
	}
	return uint16(n)
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
