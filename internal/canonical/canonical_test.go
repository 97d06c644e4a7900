package canonical

import (
	"testing"

	"github.com/kestrel-soc/kestrel/internal/domain"
)

func TestCanonicalizeFortigate(t *testing.T) {
	alert := domain.Alert{
		"decoder": map[string]any{"name": "fortigate"},
		"rule":    map[string]any{"level": float64(10)},
		"data": map[string]any{
			"srcip":    "10.0.0.5",
			"dstip":    "8.8.8.8",
			"srcport":  "42133",
			"dstport":  "22",
			"proto":    "6",
			"sentbyte": "1200",
			"rcvdbyte": "300",
			"action":   "Allow",
			"subtype":  "ips",
		},
	}

	m := New().Canonicalize(alert)

	if got := m["dst_port"]; got != 22 {
		t.Errorf("dst_port = %v, want 22", got)
	}
	if got := m["service_label"]; got != "SSH" {
		t.Errorf("service_label = %v, want SSH", got)
	}
	if got := m["dst_svc_sensitive"]; got != 1 {
		t.Errorf("dst_svc_sensitive = %v, want 1", got)
	}
	if got := m["bytes_total"]; got != 1500 {
		t.Errorf("bytes_total = %v, want 1500", got)
	}
	if got := m["proto_tcp"]; got != 1 {
		t.Errorf("proto_tcp = %v, want 1", got)
	}
	if got := m["severity_ord"]; got != 2 {
		t.Errorf("severity_ord = %v, want 2 for level 10", got)
	}
	if got := m["pf_nw"]; got != 1 {
		t.Errorf("pf_nw = %v, want 1", got)
	}
	if got := m["action_allowed"]; got != 1 {
		t.Errorf("action_allowed = %v, want 1", got)
	}
	if got := m["src_is_private"]; got != 1 {
		t.Errorf("src_is_private = %v, want 1", got)
	}
	if got := m["dir_egress"]; got != 1 {
		t.Errorf("dir_egress = %v, want 1", got)
	}
}

func TestCanonicalizeWindowsLogon(t *testing.T) {
	alert := domain.Alert{
		"agent": map[string]any{"name": "dc01"},
		"rule":  map[string]any{"level": float64(5)},
		"win": map[string]any{
			"event": map[string]any{
				"code":           "4625",
				"LogonType":      "10",
				"IpAddress":      "192.168.1.50",
				"IpPort":         "50012",
				"TargetUserName": "administrator",
			},
		},
	}

	m := New().Canonicalize(alert)

	if got := m["platform_source"]; got != "windows" {
		t.Errorf("platform_source = %v, want windows", got)
	}
	if got := m["auth_result_neg"]; got != 1 {
		t.Errorf("auth_result_neg = %v, want 1 for event 4625", got)
	}
	if got := m["service_label"]; got != "RDP" {
		t.Errorf("service_label = %v, want RDP for logon type 10", got)
	}
	if got := m["dst_port"]; got != 3389 {
		t.Errorf("dst_port = %v, want 3389", got)
	}
	if got := m["user"]; got != "administrator" {
		t.Errorf("user = %v, want administrator", got)
	}
	if got := m["pf_win"]; got != 1 {
		t.Errorf("pf_win = %v, want 1", got)
	}
}

func TestCanonicalizeLinuxSSH(t *testing.T) {
	alert := domain.Alert{
		"agent":    map[string]any{"name": "web01"},
		"rule":     map[string]any{"level": float64(5), "groups": []any{"linux", "sshd"}},
		"full_log": "Oct 10 12:01:02 web01 sshd[fail]: Failed password for root from 203.0.113.9",
	}

	m := New().Canonicalize(alert)

	if got := m["platform_source"]; got != "linux" {
		t.Errorf("platform_source = %v, want linux", got)
	}
	if got := m["service_label"]; got != "SSH" {
		t.Errorf("service_label = %v, want SSH", got)
	}
	if got := m["auth_result_neg"]; got != 1 {
		t.Errorf("auth_result_neg = %v, want 1 for failed password", got)
	}
	if got := m["dst_port"]; got != 22 {
		t.Errorf("dst_port = %v, want 22", got)
	}
}

func TestCanonicalizeFlattensEnrichment(t *testing.T) {
	alert := domain.Alert{
		"rule": map[string]any{"level": float64(3)},
		"data": map[string]any{"srcport": float64(22)},
		"enrich": map[string]any{
			"auth_fail_5m": float64(12),
			"note":         "free text, not numeric",
		},
	}

	m := New().Canonicalize(alert)

	if got := m["auth_fail_5m"]; got != float64(12) {
		t.Errorf("auth_fail_5m = %v, want 12", got)
	}
	if got := m["srcport"]; got != float64(22) {
		t.Errorf("srcport raw leaf = %v, want 22", got)
	}
	if _, ok := m["note"]; ok {
		t.Error("non-numeric enrichment leaf should not be flattened")
	}
	if _, ok := m["dstport"]; ok {
		t.Error("absent leaf must stay absent, defaults are applied later")
	}
}

func TestCanonicalizeSeverityStrings(t *testing.T) {
	tests := []struct {
		severity any
		want     int
	}{
		{"critical", 3},
		{"High", 2},
		{"medium", 1},
		{"low", 0},
		{"12", 3},
		{float64(7), 1},
	}
	for _, tt := range tests {
		alert := domain.Alert{
			"data": map[string]any{"severity": tt.severity},
		}
		m := New().Canonicalize(alert)
		if got := m["severity_ord"]; got != tt.want {
			t.Errorf("severity %v → ord %v, want %d", tt.severity, got, tt.want)
		}
	}
}

func TestCanonicalizeExtraDerivation(t *testing.T) {
	c := New(Derivation{
		Name: "bytes_ratio",
		Derive: func(m Mapping) float64 {
			recv := float64(toInt(m["bytes_recv"]))
			sent := float64(toInt(m["bytes_sent"]))
			if sent == 0 {
				return 0
			}
			return recv / sent
		},
	})
	alert := domain.Alert{
		"data": map[string]any{"sentbyte": "100", "rcvdbyte": "400"},
	}
	m := c.Canonicalize(alert)
	if got := m["bytes_ratio"]; got != 4.0 {
		t.Errorf("bytes_ratio = %v, want 4", got)
	}
}

func TestCanonicalizeNilAlert(t *testing.T) {
	m := New().Canonicalize(nil)
	if len(m) != 0 {
		t.Errorf("expected empty mapping for nil alert, got %v", m)
	}
}
