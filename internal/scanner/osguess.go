package scanner

// Port patterns that suggest an operating system family. Windows hosts
// tend to expose RPC, SMB and RDP; Unix-likes SSH and portmapper.
var (
	windowsPorts = map[uint16]bool{135: true, 445: true, 3389: true}
	unixPorts    = map[uint16]bool{22: true, 111: true}
)

// GuessOS derives a coarse OS guess from the set of open ports. A guess
// is only made when at least one port is open; hosts matching both or
// neither family come back as "Unknown".
func GuessOS(open []PortResult) (string, bool) {
	if len(open) == 0 {
		return "", false
	}
	windows := false
	unix := false
	for _, port := range open {
		if windowsPorts[port.Port] {
			windows = true
		}
		if unixPorts[port.Port] {
			unix = true
		}
	}
	switch {
	case windows && !unix:
		return "Windows", true
	case unix && !windows:
		return "Unix/Linux", true
	default:
		return "Unknown", true
	}
}
