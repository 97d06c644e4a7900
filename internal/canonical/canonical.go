// Package canonical flattens raw alert documents into a stable
// key/value mapping. Source-specific mappers normalize the common
// fields (ports, bytes, auth outcome, severity), platform flags mark
// the originating stack, and derived fields add the buckets and
// one-hots the feature map expects. Values may still be strings after
// canonicalization; coercion to numbers happens at vectorization.
package canonical

import (
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/kestrel-soc/kestrel/internal/domain"
)

// Mapping is a flat canonical view of one alert.
type Mapping map[string]any

var sensitivePorts = map[int]bool{22: true, 3389: true, 5985: true, 5986: true, 445: true}

var adminServices = map[string]bool{"SSH": true, "RDP": true, "WINRM": true, "WMI": true}

// Derivation computes one extra canonical field from the mapping
// built so far. Deployments register derivations for fields their
// feature map needs but no mapper produces.
type Derivation struct {
	Name   string
	Derive func(m Mapping) float64
}

// Canonicalizer turns raw alerts into canonical mappings.
type Canonicalizer struct {
	extra []Derivation
}

// New returns a Canonicalizer. Extra derivations run after the
// built-in ones and may overwrite them.
func New(extra ...Derivation) *Canonicalizer {
	return &Canonicalizer{extra: extra}
}

// Canonicalize builds the canonical mapping for an alert: detect the
// source, run its mapper, flatten remaining numeric leaves, then add
// platform flags and derived fields. Absent fields stay absent; the
// vectorizer fills defaults.
func (c *Canonicalizer) Canonicalize(alert domain.Alert) Mapping {
	if alert == nil {
		return Mapping{}
	}

	src := detectSource(alert)
	var m Mapping
	switch src {
	case "fortigate", "cisco", "unifi":
		m = mapNetwork(alert)
	case "windows":
		m = mapWindows(alert)
	case "linux":
		m = mapLinux(alert)
	case "openstack":
		m = mapOpenStack(alert)
	default:
		m = mapGeneric(alert)
	}

	// Enrichment sections carry precomputed counters (auth_fail_5m
	// and friends) and raw leaves the mappers do not know about.
	flattenInto(m, alert, "data")
	flattenInto(m, alert, "enrich")
	flattenInto(m, alert, "geo")
	flattenInto(m, alert, "win", "event")

	for k, v := range platformFlags(src) {
		m[k] = v
	}
	m["bytes_total"] = toInt(m["bytes_sent"]) + toInt(m["bytes_recv"])
	port := toInt(m["dst_port"])
	m["dst_svc_sensitive"] = boolToInt(sensitivePorts[port])
	m["dst_svc_admin"] = boolToInt(adminServices[asString(m["service_label"])])
	m["hour"] = alertHour(alert)

	augment(m)

	for _, d := range c.extra {
		m[d.Name] = d.Derive(m)
	}
	return m
}

// flattenInto copies numeric and boolean leaves of a nested section
// into the mapping under their lowercased leaf name. Existing keys
// are never overwritten, so mapper output wins over raw leaves.
func flattenInto(m Mapping, alert domain.Alert, path ...string) {
	section, ok := alert.GetMap(path...)
	if !ok {
		return
	}
	for k, v := range section {
		key := strings.ToLower(k)
		if _, exists := m[key]; exists {
			continue
		}
		switch val := v.(type) {
		case float64:
			m[key] = val
		case int:
			m[key] = val
		case bool:
			m[key] = boolToInt(val)
		case string:
			if f, err := strconv.ParseFloat(val, 64); err == nil {
				m[key] = f
			}
		}
	}
}

// detectSource classifies the alert by its decoder, rule groups and
// agent name.
func detectSource(alert domain.Alert) string {
	dec, _ := alert.GetString("decoder", "name")
	dec = strings.ToLower(dec)
	agent, _ := alert.GetString("agent", "name")
	agent = strings.ToLower(agent)

	var groups []string
	if gs, ok := alert.GetSlice("rule", "groups"); ok {
		for _, g := range gs {
			if s, ok := g.(string); ok {
				groups = append(groups, strings.ToLower(s))
			}
		}
	}
	full := dec + " " + strings.Join(groups, " ") + " " + agent

	for _, k := range []string{"fortigate", "cisco", "unifi", "asa", "firewall", "router", "switch"} {
		if strings.Contains(full, k) {
			switch {
			case strings.Contains(full, "fortigate"):
				return "fortigate"
			case strings.Contains(full, "cisco"), strings.Contains(full, "asa"):
				return "cisco"
			default:
				return "unifi"
			}
		}
	}
	if _, hasWin := alert.GetMap("win", "event"); strings.Contains(full, "windows") || strings.Contains(dec, "win") || strings.Contains(agent, "win") || hasWin {
		return "windows"
	}
	if strings.Contains(full, "linux") {
		return "linux"
	}
	for _, k := range []string{"openstack", "nova", "keystone", "neutron"} {
		if strings.Contains(full, k) {
			return "openstack"
		}
	}
	if devid, _ := alert.GetString("data", "devid"); devid != "" {
		return "fortigate"
	}
	if sub, _ := alert.GetString("data", "subtype"); sub == "ips" {
		return "fortigate"
	}
	return "generic"
}

func platformFlags(source string) map[string]int {
	src := strings.ToLower(source)
	nw := 0
	for _, k := range []string{"fortigate", "cisco", "unifi", "firewall", "router", "switch"} {
		if strings.Contains(src, k) {
			nw = 1
		}
	}
	return map[string]int{
		"pf_win":  boolToInt(strings.Contains(src, "windows") || strings.Contains(src, "win")),
		"pf_lin":  boolToInt(strings.Contains(src, "linux")),
		"pf_nw":   nw,
		"pf_osks": boolToInt(strings.Contains(src, "openstack")),
	}
}

func mapNetwork(alert domain.Alert) Mapping {
	srcPort := intAt(alert, "data", "srcport")
	dstPort := intAt(alert, "data", "dstport")
	svcRaw, _ := alert.GetString("data", "service")
	svc := normService(dstPort, svcRaw)

	severity, hasSeverity := alert.Get("data", "severity")
	sev := severityOrd(ruleLevel(alert))
	if hasSeverity {
		sev = severityOrdAny(severity)
	}

	host, _ := alert.GetString("data", "devname")
	if host == "" {
		host, _ = alert.GetString("agent", "name")
	}

	action, _ := alert.GetString("data", "action")
	family, _ := alert.GetString("data", "subtype")
	if family == "" {
		family = "na"
	}
	user, _ := alert.GetString("data", "srcuser")

	return Mapping{
		"src_ip":          stringAt(alert, []string{"data", "srcip"}, []string{"data", "src"}),
		"dst_ip":          stringAt(alert, []string{"data", "dstip"}, []string{"data", "dst"}),
		"src_port":        srcPort,
		"dst_port":        dstPort,
		"proto":           stringAtDefault(alert, "na", []string{"data", "proto"}, []string{"data", "proto_name"}),
		"bytes_sent":      intAt(alert, "data", "sentbyte"),
		"bytes_recv":      intAt(alert, "data", "rcvdbyte"),
		"duration_sec":    intAt(alert, "data", "duration"),
		"rule_level":      ruleLevel(alert),
		"severity_ord":    sev,
		"action":          strings.ToLower(action),
		"threat_family":   strings.ToLower(family),
		"service_label":   svc,
		"user":            user,
		"host":            host,
		"platform_source": "network",
	}
}

func mapWindows(alert domain.Alert) Mapping {
	code, _ := alert.GetString("win", "event", "code")
	authResult := -1
	switch code {
	case "4624":
		authResult = 1
	case "4625":
		authResult = 0
	}

	logonType, _ := alert.GetString("win", "event", "LogonType")
	if logonType == "" {
		logonType, _ = alert.GetString("win", "event", "logon_type")
	}
	serviceLabel := "NA"
	dstPort := 0
	if logonType == "10" || logonType == "7" {
		serviceLabel = "RDP"
		dstPort = 3389
	}
	if logonType == "" {
		logonType = "na"
	}

	user, _ := alert.GetString("win", "event", "TargetUserName")
	if user == "" {
		user, _ = alert.GetString("win", "event", "AccountName")
	}
	srcIP, _ := alert.GetString("win", "event", "IpAddress")
	host, _ := alert.GetString("agent", "name")

	return Mapping{
		"src_ip":          srcIP,
		"dst_ip":          "",
		"src_port":        intAt(alert, "win", "event", "IpPort"),
		"dst_port":        dstPort,
		"proto":           "tcp",
		"bytes_sent":      0,
		"bytes_recv":      0,
		"duration_sec":    0,
		"rule_level":      ruleLevel(alert),
		"severity_ord":    0,
		"action":          "na",
		"threat_family":   "auth",
		"service_label":   serviceLabel,
		"user":            user,
		"host":            host,
		"platform_source": "windows",
		"auth_result":     authResult,
		"logon_type":      logonType,
	}
}

func mapLinux(alert domain.Alert) Mapping {
	msg, _ := alert.GetString("full_log")
	msg = strings.ToLower(msg)
	authResult := -1
	if strings.Contains(msg, "accepted password") {
		authResult = 1
	} else if strings.Contains(msg, "failed password") {
		authResult = 0
	}

	sshd := strings.Contains(msg, "sshd")
	dstPort := 0
	family := "na"
	service := "NA"
	if sshd {
		dstPort = 22
		family = "auth"
		service = "SSH"
	}
	host, _ := alert.GetString("agent", "name")

	return Mapping{
		"src_ip":          "",
		"dst_ip":          "",
		"src_port":        0,
		"dst_port":        dstPort,
		"proto":           "tcp",
		"bytes_sent":      0,
		"bytes_recv":      0,
		"duration_sec":    0,
		"rule_level":      ruleLevel(alert),
		"severity_ord":    0,
		"action":          "na",
		"threat_family":   family,
		"service_label":   service,
		"user":            "",
		"host":            host,
		"platform_source": "linux",
		"auth_result":     authResult,
		"logon_type":      "na",
	}
}

func mapOpenStack(alert domain.Alert) Mapping {
	outcome := stringAtDefault(alert, "", []string{"data", "outcome"}, []string{"data", "status"})
	outcome = strings.ToLower(outcome)
	authResult := -1
	switch outcome {
	case "success":
		authResult = 1
	case "failure":
		authResult = 0
	}
	family := "na"
	if authResult != -1 {
		family = "auth"
	}

	user, _ := alert.GetString("data", "username")
	host, _ := alert.GetString("data", "service")
	if host == "" {
		host = "openstack"
	}
	remote, _ := alert.GetString("data", "remote_address")

	return Mapping{
		"src_ip":          remote,
		"dst_ip":          "",
		"src_port":        0,
		"dst_port":        0,
		"proto":           "tcp",
		"bytes_sent":      intAt(alert, "data", "bytes_sent"),
		"bytes_recv":      intAt(alert, "data", "bytes_received"),
		"duration_sec":    intAt(alert, "data", "duration"),
		"rule_level":      ruleLevel(alert),
		"severity_ord":    0,
		"action":          "na",
		"threat_family":   family,
		"service_label":   "API",
		"user":            user,
		"host":            host,
		"platform_source": "openstack",
		"auth_result":     authResult,
		"logon_type":      "api",
	}
}

func mapGeneric(alert domain.Alert) Mapping {
	dstPort := intAt(alert, "data", "dstport")
	svcRaw, _ := alert.GetString("data", "service")

	severity, hasSeverity := alert.Get("data", "severity")
	sev := severityOrd(ruleLevel(alert))
	if hasSeverity {
		sev = severityOrdAny(severity)
	}

	action, _ := alert.GetString("data", "action")
	if action == "" {
		action = "na"
	}
	family, _ := alert.GetString("data", "subtype")
	if family == "" {
		family = "na"
	}
	user, _ := alert.GetString("data", "user")
	host, _ := alert.GetString("agent", "name")

	return Mapping{
		"src_ip":          stringAt(alert, []string{"data", "srcip"}),
		"dst_ip":          stringAt(alert, []string{"data", "dstip"}),
		"src_port":        intAt(alert, "data", "srcport"),
		"dst_port":        dstPort,
		"proto":           stringAtDefault(alert, "na", []string{"data", "proto"}),
		"bytes_sent":      intAt(alert, "data", "sentbyte"),
		"bytes_recv":      intAt(alert, "data", "rcvdbyte"),
		"duration_sec":    intAt(alert, "data", "duration"),
		"rule_level":      ruleLevel(alert),
		"severity_ord":    sev,
		"action":          strings.ToLower(action),
		"threat_family":   strings.ToLower(family),
		"service_label":   normService(dstPort, svcRaw),
		"user":            user,
		"host":            host,
		"platform_source": "generic",
	}
}

// augment adds the derived buckets and one-hots feature maps resolve
// against, so a map entry like proto_tcp or port_bucket_low always
// has a value when the underlying field was present.
func augment(m Mapping) {
	dstPort := toInt(m["dst_port"])
	m["port_bucket_low"] = boolToInt(dstPort > 0 && dstPort <= 1024)
	m["port_bucket_mid"] = boolToInt(dstPort >= 1025 && dstPort <= 49151)
	m["port_bucket_high"] = boolToInt(dstPort >= 49152)

	token := strings.ToLower(strings.TrimSpace(asString(m["proto"])))
	if code, err := strconv.Atoi(token); err == nil {
		switch code {
		case 6:
			token = "tcp"
		case 17:
			token = "udp"
		case 1:
			token = "icmp"
		default:
			token = "other"
		}
	}
	m["proto_tcp"] = boolToInt(token == "tcp")
	m["proto_udp"] = boolToInt(token == "udp")
	m["proto_icmp"] = boolToInt(token == "icmp")

	svc := strings.ToUpper(asString(m["service_label"]))
	for label, key := range map[string]string{
		"SNMP": "service_snmp", "SSH": "service_ssh", "RDP": "service_rdp",
		"WINRM": "service_winrm", "SMTP": "service_smtp",
		"HTTP": "service_http", "HTTPS": "service_https",
	} {
		m[key] = boolToInt(svc == label)
	}

	m["severity_ord"] = toInt(m["severity_ord"])

	ar := -1
	if v, ok := m["auth_result"]; ok {
		ar = toIntDefault(v, -1)
	}
	m["auth_result_pos"] = boolToInt(ar == 1)
	m["auth_result_neg"] = boolToInt(ar == 0)

	act := strings.ToLower(asString(m["action"]))
	m["action_allowed"] = boolToInt(act == "allow" || act == "allowed" || act == "accept" || act == "permitted")
	m["action_blocked"] = boolToInt(act == "block" || act == "blocked" || act == "deny" || act == "denied")
	m["action_dropped"] = boolToInt(act == "drop" || act == "dropped")

	srcIP := asString(m["src_ip"])
	dstIP := asString(m["dst_ip"])
	m["src_is_private"] = boolToInt(isPrivate(srcIP))
	m["dst_is_private"] = boolToInt(isPrivate(dstIP))
	m["same_subnet_24"] = boolToInt(same24(srcIP, dstIP))

	allowed := m["action_allowed"] == 1
	nw := toInt(m["pf_nw"]) == 1
	srcPriv := m["src_is_private"] == 1
	dstPriv := m["dst_is_private"] == 1
	m["dir_ingress"] = boolToInt(allowed && nw && dstPriv)
	m["dir_egress"] = boolToInt(allowed && nw && srcPriv && !dstPriv)
	m["dir_internal"] = boolToInt(srcPriv && dstPriv)
}

// normService maps a destination port and free-form service string to
// a normalized service label.
func normService(port int, service string) string {
	svc := strings.ToUpper(strings.TrimSpace(service))
	switch {
	case port == 22 || svc == "SSH":
		return "SSH"
	case port == 3389 || svc == "RDP":
		return "RDP"
	case port == 5985 || port == 5986 || svc == "WINRM" || svc == "WMI":
		return "WINRM"
	case port == 161 || svc == "SNMP":
		return "SNMP"
	case port == 443 || svc == "HTTPS":
		return "HTTPS"
	case port == 80 || svc == "HTTP":
		return "HTTP"
	case port == 53 || svc == "DNS":
		return "DNS"
	case port == 25 || svc == "SMTP" || svc == "SMTPS":
		return "SMTP"
	}
	if svc == "" {
		return "NA"
	}
	return svc
}

// severityOrd maps a numeric rule level to an ordinal 0..3.
func severityOrd(level int) int {
	switch {
	case level >= 12:
		return 3
	case level >= 9:
		return 2
	case level >= 6:
		return 1
	default:
		return 0
	}
}

// severityOrdAny accepts numeric levels or the string severities
// low, medium, high, critical.
func severityOrdAny(v any) int {
	switch s := v.(type) {
	case float64:
		return severityOrd(int(s))
	case int:
		return severityOrd(s)
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return severityOrd(n)
		}
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "critical":
			return 3
		case "high":
			return 2
		case "medium":
			return 1
		}
	}
	return 0
}

func ruleLevel(alert domain.Alert) int {
	if v, ok := alert.Get("rule", "level"); ok {
		return toInt(v)
	}
	return 0
}

func alertHour(alert domain.Alert) int {
	for _, key := range []string{"timestamp", "@timestamp"} {
		if s, ok := alert.GetString(key); ok && s != "" {
			if ts, err := time.Parse(time.RFC3339, s); err == nil {
				return ts.UTC().Hour()
			}
		}
	}
	return 0
}

func isPrivate(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	return addr.IsPrivate() || addr.IsLoopback() || addr.IsLinkLocalUnicast()
}

func same24(a, b string) bool {
	a4 := strings.Split(a, ".")
	b4 := strings.Split(b, ".")
	if len(a4) != 4 || len(b4) != 4 {
		return false
	}
	return a4[0] == b4[0] && a4[1] == b4[1] && a4[2] == b4[2]
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func toInt(v any) int {
	return toIntDefault(v, 0)
}

func toIntDefault(v any, def int) int {
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	case bool:
		if n {
			return 1
		}
		return 0
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil {
			return int(f)
		}
	}
	return def
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func intAt(alert domain.Alert, path ...string) int {
	v, ok := alert.Get(path...)
	if !ok {
		return 0
	}
	return toInt(v)
}

func stringAt(alert domain.Alert, paths ...[]string) string {
	return stringAtDefault(alert, "", paths...)
}

func stringAtDefault(alert domain.Alert, def string, paths ...[]string) string {
	for _, p := range paths {
		if s, ok := alert.GetString(p...); ok && s != "" {
			return s
		}
	}
	return def
}
