package nmap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkarlsen/devbay/internal/errors"
	"github.com/mkarlsen/devbay/internal/scanner"
)

func TestBuildArgs(t *testing.T) {
	tests := []struct {
		name      string
		host      string
		ports     []uint16
		osDetect  bool
		versions  bool
		want      []string
	}{
		{
			name: "plain",
			host: "127.0.0.1",
			want: []string{"127.0.0.1", "-oX", "-", "-T4"},
		},
		{
			name:  "with ports",
			host:  "127.0.0.1",
			ports: []uint16{22, 80, 443},
			want:  []string{"127.0.0.1", "-p", "22,80,443", "-oX", "-", "-T4"},
		},
		{
			name:     "all options",
			host:     "192.168.1.10",
			ports:    []uint16{8787},
			osDetect: true,
			versions: true,
			want:     []string{"192.168.1.10", "-p", "8787", "-O", "-sV", "-oX", "-", "-T4"},
		},
		{
			name:     "os only",
			host:     "localhost",
			osDetect: true,
			want:     []string{"localhost", "-O", "-oX", "-", "-T4"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, buildArgs(tt.host, tt.ports, tt.osDetect, tt.versions))
		})
	}
}

const sampleXML = `<?xml version="1.0" encoding="UTF-8"?>
<nmaprun scanner="nmap" args="nmap 127.0.0.1 -oX - -T4">
<host starttime="1700000000" endtime="1700000010">
<address addr="127.0.0.1" addrtype="ipv4"/>
<address addr="AA:BB:CC:DD:EE:FF" addrtype="mac"/>
<ports>
<port protocol="tcp" portid="22"><state state="open" reason="syn-ack"/><service name="ssh" product="OpenSSH" version="9.6" method="probed"/></port>
<port protocol="tcp" portid="80"><state state="open" reason="syn-ack"/><service name="http" product="nginx" version="1.18.0"/></port>
<port protocol="tcp" portid="443"><state state="filtered" reason="no-response"/></port>
<port protocol="tcp" portid="25"><state state="closed" reason="conn-refused"/></port>
</ports>
<os>
<osmatch name="Linux 5.4 - 5.15" accuracy="96"/>
<osmatch name="Linux 4.15" accuracy="91"/>
</os>
</host>
</nmaprun>`

func TestParseXML(t *testing.T) {
	report, err := ParseXML(sampleXML, "localhost")
	require.NoError(t, err)

	// The address element overrides the requested host name.
	assert.Equal(t, "127.0.0.1", report.Host)
	require.Len(t, report.Ports, 3)

	assert.Equal(t, uint16(22), report.Ports[0].Port)
	assert.Equal(t, scanner.StatusOpen, report.Ports[0].Status)
	assert.Equal(t, "ssh", report.Ports[0].Service)
	assert.Equal(t, "9.6", report.Ports[0].Version)

	assert.Equal(t, uint16(80), report.Ports[1].Port)
	assert.Equal(t, "1.18.0", report.Ports[1].Version)

	assert.Equal(t, uint16(443), report.Ports[2].Port)
	assert.Equal(t, scanner.StatusFiltered, report.Ports[2].Status)

	// First osmatch wins.
	assert.Equal(t, "Linux 5.4 - 5.15", report.OSGuess)

	require.Len(t, report.Services, 2)
	assert.Equal(t, "OpenSSH", report.Services[0].Name)
	assert.Equal(t, "ssh", report.Services[0].Info)
	assert.Equal(t, "nginx", report.Services[1].Name)
}

func TestParseXMLServiceWithoutProduct(t *testing.T) {
	output := `<port protocol="tcp" portid="80"><state state="open"/><service name="http"/></port>`
	report, err := ParseXML(output, "127.0.0.1")
	require.NoError(t, err)
	require.Len(t, report.Services, 1)
	assert.Equal(t, "http", report.Services[0].Name)
}

func TestParseXMLEmpty(t *testing.T) {
	report, err := ParseXML("", "127.0.0.1")
	require.NoError(t, err)
	assert.Empty(t, report.Ports)
	assert.Empty(t, report.Services)
	assert.Empty(t, report.OSGuess)
}

func TestParseXMLMalformed(t *testing.T) {
	// Truncated output and junk lines must not break the parser.
	output := `<port protocol="tcp" portid="8080"><state state="open"
garbage line with no xml
<port protocol="tcp" portid="notanumber"><state state="open"/>`
	report, err := ParseXML(output, "127.0.0.1")
	require.NoError(t, err)
	require.Len(t, report.Ports, 1)
	assert.Equal(t, uint16(8080), report.Ports[0].Port)
}

func TestExtractAttr(t *testing.T) {
	line := `<service name="ssh" product="OpenSSH" version="9.6"/>`
	assert.Equal(t, "ssh", extractAttr(line, "name"))
	assert.Equal(t, "9.6", extractAttr(line, "version"))
	assert.Equal(t, "", extractAttr(line, "missing"))
	assert.Equal(t, "", extractAttr(`broken attr="unterminated`, "missing"))
}

func TestAvailableMissingBinary(t *testing.T) {
	runner := NewRunner(nil)
	runner.binary = "definitely-not-a-real-binary-devbay"
	assert.False(t, runner.Available(context.Background()))
}

func TestScanMissingBinary(t *testing.T) {
	runner := NewRunner(nil)
	runner.binary = "definitely-not-a-real-binary-devbay"

	_, err := runner.Scan(context.Background(), "127.0.0.1", []uint16{22}, false, false)
	require.Error(t, err)
	assert.Equal(t, errors.CodeSubprocess, errors.GetCode(err))
}
