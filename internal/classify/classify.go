package classify

import (
	"strings"

	"github.com/NSAlexeyMK/noblindezone/internal/event"
)

// DecodeFunc turns a raw record into a classified event. The second return
// is false when the record is not of interest: wrong shape, filtered
// identity, or a logon type outside the monitored set. Dropping is silent;
// it is the normal fate of most records in a batch.
type DecodeFunc func(raw event.Raw) (event.Event, bool)

var registry = map[int]DecodeFunc{
	event.CodeStartup:        decodeStartup,
	event.CodeLogon:          decodeLogon,
	event.CodePrivilege:      decodePrivilege,
	event.CodeTaskCreated:    decodeTask,
	event.CodeServiceInstall: decodeServiceInstall,
	event.CodeServiceChange:  decodeServiceChange,
	event.CodeSysmonProcess:  decodeProcess,
}

// Classify dispatches on the event-type code. Unknown codes are dropped.
func Classify(raw event.Raw) (event.Event, bool) {
	dec, ok := registry[raw.Code]
	if !ok {
		return event.Event{}, false
	}
	return dec(raw)
}

// Interactive logon types worth reporting: local console, workstation
// unlock, and RDP. Network/service logons fire constantly and are noise.
var logonTypes = map[string]string{
	"2":  "local logon",
	"7":  "unlock",
	"15": "remote logon (RDP)",
}

// LogonTypeLabel resolves a numeric logon type to its label.
func LogonTypeLabel(t string) string {
	if label, ok := logonTypes[t]; ok {
		return label
	}
	return "unknown type"
}

var serviceStartTypes = map[string]string{
	"0": "boot start",
	"1": "system start",
	"2": "automatic",
	"3": "on demand",
	"4": "disabled",
}

// StartTypeLabel maps the numeric start type carried by install records to
// its label. Change records already carry a textual start type and pass
// through unchanged.
func StartTypeLabel(t string) string {
	if label, ok := serviceStartTypes[t]; ok {
		return label
	}
	return "unknown (" + t + ")"
}

const wellKnownSystemSID = "S-1-5-18"

// systemIdentity reports whether the acting account is the machine itself.
// These accounts fire privilege, task, and service records continuously for
// system-internal activity and are never actionable.
func systemIdentity(user, sid string) bool {
	switch user {
	case "SYSTEM", "СИСТЕМА":
		return true
	}
	return sid == wellKnownSystemSID
}

func decodeStartup(raw event.Raw) (event.Event, bool) {
	detail := "no data"
	if len(raw.Fields) > 0 && strings.TrimSpace(raw.Fields[0]) != "" {
		detail = raw.Fields[0]
	}
	return event.Event{
		Category: event.Startup,
		Code:     raw.Code,
		Time:     raw.Time,
		Fields:   raw.Fields,
		Startup:  &event.StartupInfo{Detail: detail},
	}, true
}

func decodeLogon(raw event.Raw) (event.Event, bool) {
	if len(raw.Fields) <= 9 {
		return event.Event{}, false
	}
	logonType := raw.Fields[8]
	if _, ok := logonTypes[logonType]; !ok {
		return event.Event{}, false
	}
	return event.Event{
		Category: event.Logon,
		Code:     raw.Code,
		Time:     raw.Time,
		Fields:   raw.Fields,
		Logon: &event.LogonInfo{
			User:      raw.Fields[5],
			Domain:    raw.Fields[6],
			LogonType: logonType,
		},
	}, true
}

func decodePrivilege(raw event.Raw) (event.Event, bool) {
	if len(raw.Fields) < 3 {
		return event.Event{}, false
	}
	sid, user, domain := raw.Fields[0], raw.Fields[1], raw.Fields[2]
	if systemIdentity(user, sid) {
		return event.Event{}, false
	}
	privileges := "unknown"
	if len(raw.Fields) > 3 && strings.TrimSpace(raw.Fields[3]) != "" {
		privileges = joinPrivileges(raw.Fields[3])
	}
	return event.Event{
		Category: event.PrivilegeAssignment,
		Code:     raw.Code,
		Time:     raw.Time,
		Fields:   raw.Fields,
		Privilege: &event.PrivilegeInfo{
			User:       user,
			Domain:     domain,
			Privileges: privileges,
		},
	}, true
}

// joinPrivileges collapses the multi-line privilege list into one
// comma-separated string.
func joinPrivileges(s string) string {
	var parts []string
	for _, p := range strings.Split(s, "\r\n") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return "unknown"
	}
	return strings.Join(parts, ", ")
}

func decodeTask(raw event.Raw) (event.Event, bool) {
	if len(raw.Fields) < 5 {
		return event.Event{}, false
	}
	sid, user, domain := raw.Fields[0], raw.Fields[1], raw.Fields[2]
	if systemIdentity(user, sid) {
		return event.Event{}, false
	}
	content := "unknown"
	if len(raw.Fields) > 5 {
		content = raw.Fields[5]
	}
	return event.Event{
		Category: event.TaskCreation,
		Code:     raw.Code,
		Time:     raw.Time,
		Fields:   raw.Fields,
		Task: &event.TaskInfo{
			User:    user,
			Domain:  domain,
			Name:    raw.Fields[4],
			Content: content,
		},
	}, true
}

func decodeServiceInstall(raw event.Raw) (event.Event, bool) {
	if len(raw.Fields) < 8 {
		return event.Event{}, false
	}
	sid, user, domain := raw.Fields[0], raw.Fields[1], raw.Fields[2]
	if systemIdentity(user, sid) {
		return event.Event{}, false
	}
	account := "unknown"
	if len(raw.Fields) > 8 {
		account = raw.Fields[8]
	}
	return event.Event{
		Category: event.ServiceChange,
		Code:     raw.Code,
		Time:     raw.Time,
		Fields:   raw.Fields,
		Service: &event.ServiceInfo{
			User:      user,
			Domain:    domain,
			Name:      raw.Fields[4],
			ImagePath: raw.Fields[5],
			Type:      raw.Fields[6],
			StartType: StartTypeLabel(raw.Fields[7]),
			Account:   account,
			Installed: true,
		},
	}, true
}

func decodeServiceChange(raw event.Raw) (event.Event, bool) {
	if len(raw.Fields) < 5 {
		return event.Event{}, false
	}
	user := "unknown"
	if len(raw.Fields) > 5 {
		user = raw.Fields[5]
	}
	if systemIdentity(user, "") {
		return event.Event{}, false
	}
	return event.Event{
		Category: event.ServiceChange,
		Code:     raw.Code,
		Time:     raw.Time,
		Fields:   raw.Fields,
		Service: &event.ServiceInfo{
			User:      user,
			Name:      raw.Fields[0],
			ImagePath: raw.Fields[1],
			StartType: raw.Fields[2],
			Type:      raw.Fields[3],
			Account:   raw.Fields[4],
		},
	}, true
}

func decodeProcess(raw event.Raw) (event.Event, bool) {
	guid := strings.TrimSpace(raw.Payload["ProcessGuid"])
	if guid == "" {
		return event.Event{}, false
	}
	return event.Event{
		Category: event.ProcessCreation,
		Code:     raw.Code,
		Time:     raw.Time,
		Fields:   raw.Fields,
		Process: &event.ProcessInfo{
			GUID:        guid,
			Image:       raw.Payload["Image"],
			CommandLine: raw.Payload["CommandLine"],
			SHA256:      sha256FromHashes(raw.Payload["Hashes"]),
			UserSID:     raw.Payload["UserID"],
		},
	}, true
}

// sha256FromHashes picks the SHA256 entry out of the comma-separated
// "ALG=hex" hash list Sysmon emits.
func sha256FromHashes(hashes string) string {
	for _, h := range strings.Split(hashes, ",") {
		h = strings.TrimSpace(h)
		if strings.HasPrefix(h, "SHA256=") {
			return strings.TrimPrefix(h, "SHA256=")
		}
	}
	return ""
}
