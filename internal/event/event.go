package event

import "time"

// Category is one of the fixed classes of monitored host activity. Each
// category owns one watermark file and one journal file.
type Category string

const (
	Startup             Category = "startup"
	Logon               Category = "logon"
	PrivilegeAssignment Category = "privilege"
	TaskCreation        Category = "task"
	ServiceChange       Category = "service"
	ProcessCreation     Category = "process"
)

// Categories returns every monitored category in report order.
func Categories() []Category {
	return []Category{
		Startup,
		Logon,
		PrivilegeAssignment,
		TaskCreation,
		ServiceChange,
		ProcessCreation,
	}
}

// Title is the human heading used for the category's report section.
func (c Category) Title() string {
	switch c {
	case Startup:
		return "System startup"
	case Logon:
		return "Logons"
	case PrivilegeAssignment:
		return "Privilege assignment"
	case TaskCreation:
		return "Scheduled task creation"
	case ServiceChange:
		return "Service installs and changes"
	case ProcessCreation:
		return "Process creation (Sysmon)"
	default:
		return string(c)
	}
}

// Source event-type codes.
const (
	CodeStartup        = 6005
	CodeLogon          = 4624
	CodePrivilege      = 4672
	CodeTaskCreated    = 4698
	CodeServiceInstall = 4697
	CodeServiceChange  = 7045
	CodeSysmonProcess  = 1
)

// Raw is one record as yielded by a source scan: the event-type code, the
// UTC timestamp, the ordered insert strings, and, for query-style sources,
// the named payload fields. A Raw lives for one scan iteration only.
type Raw struct {
	Code    int               `json:"code"`
	Time    time.Time         `json:"time"`
	Fields  []string          `json:"fields,omitempty"`
	Payload map[string]string `json:"data,omitempty"`
}

type StartupInfo struct {
	Detail string
}

type LogonInfo struct {
	User      string
	Domain    string
	LogonType string
}

type PrivilegeInfo struct {
	User       string
	Domain     string
	Privileges string
}

type TaskInfo struct {
	User    string
	Domain  string
	Name    string
	Content string
}

type ServiceInfo struct {
	User      string
	Domain    string
	Name      string
	ImagePath string
	Type      string
	StartType string
	Account   string
	Installed bool // true for a fresh install, false for a change
}

type ProcessInfo struct {
	GUID        string
	Image       string
	CommandLine string
	SHA256      string
	UserSID     string

	// Reputation verdict, filled by the pipeline after lookup.
	Verdict string
}

// Event is the classified form of a Raw: exactly one of the per-category
// attribute pointers is set, matching Category. Fields keeps the original
// insert strings for audit. Events are never mutated after classification
// except for Process.Verdict enrichment.
type Event struct {
	Category Category
	Code     int
	Time     time.Time
	Fields   []string

	Startup   *StartupInfo
	Logon     *LogonInfo
	Privilege *PrivilegeInfo
	Task      *TaskInfo
	Service   *ServiceInfo
	Process   *ProcessInfo
}
