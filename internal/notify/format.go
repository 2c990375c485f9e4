package notify

import (
	"fmt"

	"github.com/NSAlexeyMK/noblindezone/internal/classify"
	"github.com/NSAlexeyMK/noblindezone/internal/event"
)

const timeLayout = "2006-01-02 15:04:05"

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

// Summary is the one-line form of an event used for journal entries and
// the daily report.
func Summary(ev event.Event) string {
	switch ev.Category {
	case event.Startup:
		return fmt.Sprintf("System startup, details: %s", ev.Startup.Detail)
	case event.Logon:
		return fmt.Sprintf("User: %s, type: %s, domain: %s",
			orUnknown(ev.Logon.User), ev.Logon.LogonType, orUnknown(ev.Logon.Domain))
	case event.PrivilegeAssignment:
		return fmt.Sprintf("User: %s, privileges: %s, domain: %s",
			orUnknown(ev.Privilege.User), ev.Privilege.Privileges, orUnknown(ev.Privilege.Domain))
	case event.TaskCreation:
		return fmt.Sprintf("Task: %s, user: %s, content: %s",
			orUnknown(ev.Task.Name), orUnknown(ev.Task.User), ev.Task.Content)
	case event.ServiceChange:
		verb := "Service changed"
		if ev.Service.Installed {
			verb = "New service"
		}
		return fmt.Sprintf("%s: %s, start type: %s, user: %s",
			verb, orUnknown(ev.Service.Name), orUnknown(ev.Service.StartType), orUnknown(ev.Service.User))
	case event.ProcessCreation:
		return fmt.Sprintf("Process: %s, args: %s, SHA256: %s, VirusTotal: %s",
			orUnknown(ev.Process.Image), orUnknown(ev.Process.CommandLine),
			orUnknown(ev.Process.SHA256), orUnknown(ev.Process.Verdict))
	default:
		return string(ev.Category)
	}
}

// Message is the full multi-line notification text for an event.
func Message(ev event.Event) string {
	ts := ev.Time.UTC().Format(timeLayout)
	switch ev.Category {
	case event.Startup:
		msg := fmt.Sprintf("🖥️ Computer started! Time: %s", ts)
		if ev.Startup.Detail != "no data" {
			msg += fmt.Sprintf(", details: %s", ev.Startup.Detail)
		}
		return msg
	case event.Logon:
		return fmt.Sprintf(
			"🔑 User logon:\nUser: %s\nTime: %s\nDomain: %s\nLogon type: %s (type %s)\nFull event data: %v",
			orUnknown(ev.Logon.User), ts, orUnknown(ev.Logon.Domain),
			classify.LogonTypeLabel(ev.Logon.LogonType), ev.Logon.LogonType, ev.Fields)
	case event.PrivilegeAssignment:
		return fmt.Sprintf(
			"🔒 Privilege assignment:\nUser: %s\nTime: %s\nDomain: %s\nPrivileges: %s\nFull event data: %v",
			orUnknown(ev.Privilege.User), ts, orUnknown(ev.Privilege.Domain),
			ev.Privilege.Privileges, ev.Fields)
	case event.TaskCreation:
		return fmt.Sprintf(
			"📋 Task created: %s\nUser: %s\nDomain: %s\nTime: %s\nContent: %s",
			orUnknown(ev.Task.Name), orUnknown(ev.Task.User), orUnknown(ev.Task.Domain),
			ts, ev.Task.Content)
	case event.ServiceChange:
		verb := "Service changed"
		if ev.Service.Installed {
			verb = "New service"
		}
		return fmt.Sprintf(
			"⚙️ %s: %q Start type: %s Time: %s",
			verb, orUnknown(ev.Service.Name), orUnknown(ev.Service.StartType), ts)
	case event.ProcessCreation:
		return fmt.Sprintf(
			"⚠️ Process started: %s\nTime: %s\nArguments: %s\nSHA256: %s\nVirusTotal: %s",
			orUnknown(ev.Process.Image), ts, orUnknown(ev.Process.CommandLine),
			orUnknown(ev.Process.SHA256), orUnknown(ev.Process.Verdict))
	default:
		return Summary(ev)
	}
}
