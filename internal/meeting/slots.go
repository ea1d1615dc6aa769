package meeting

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Control types understood by the meeting-room service.
const (
	ControlListRooms = 2
	ControlFreeSlots = 4
	ControlBook      = 5
	ControlCancel    = 6
	ControlLocation  = 7
)

// controlName returns the user-facing name of a control type, matching the
// wording of the classification prompt.
func controlName(controlType int) string {
	switch controlType {
	case ControlListRooms:
		return "获取会议室清单"
	case ControlFreeSlots:
		return "查看会议室空闲时段"
	case ControlBook:
		return "预订会议室"
	case ControlCancel:
		return "取消预订"
	case ControlLocation:
		return "获取会议室位置信息"
	default:
		return fmt.Sprintf("请求类型%d", controlType)
	}
}

// Slot is one parameter of a meeting-room request. Slots with a non-empty
// Default are filled up front and never asked for.
type Slot struct {
	Name    string
	Desc    string
	Default string
}

// slotTemplates lists the parameters each control type needs before the
// backing API can be called. Control types absent here need no parameters.
var slotTemplates = map[int][]Slot{
	ControlFreeSlots: {
		{Name: "bookDate", Desc: "预订日期（yyyy-MM-dd）"},
		{Name: "addrCode", Desc: "会议室位置代码"},
		{Name: "ADNumber", Desc: "被查询的员工账号", Default: "Default test"},
		{Name: "departmentID", Desc: "员工所属部门编码", Default: "Default test"},
	},
	ControlBook: {
		{Name: "Booker", Desc: "预定人AD账号"},
		{Name: "RoomId", Desc: "会议室Id"},
		{Name: "StartTime", Desc: "预定开始时间（yyyy-MM-dd HH:mm）"},
		{Name: "EndTime", Desc: "预定结束时间（yyyy-MM-dd HH:mm）"},
		{Name: "MeetingTitle", Desc: "会议主题", Default: "Default test"},
	},
	ControlCancel: {
		{Name: "CancelledBy", Desc: "取消人AD账号, 取消者和预定者必须为同一账号"},
		{Name: "BookId", Desc: "预定记录Id"},
	},
}

// defaultSlots builds the initial slot map for a control type. Unknown or
// parameterless control types get an empty map.
func defaultSlots(controlType int) map[string]string {
	slots := map[string]string{}
	for _, s := range slotTemplates[controlType] {
		slots[s.Name] = s.Default
	}
	return slots
}

// slotTemplateText renders the parameter template the fill prompt shows the
// model, one line per parameter with its description.
func slotTemplateText(controlType int) string {
	tmpl := slotTemplates[controlType]
	if len(tmpl) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("```json\n{\n")
	for _, s := range tmpl {
		fmt.Fprintf(&b, "  %q: null,  // %s\n", s.Name, s.Desc)
	}
	b.WriteString("}\n```")
	return b.String()
}

// missingSlots returns the names of required slots still unfilled, in
// template order.
func missingSlots(controlType int, slots map[string]string) []string {
	var missing []string
	for _, s := range slotTemplates[controlType] {
		if slots[s.Name] == "" {
			missing = append(missing, s.Name)
		}
	}
	return missing
}

// slotDesc looks up the human description of a slot name.
func slotDesc(controlType int, name string) string {
	for _, s := range slotTemplates[controlType] {
		if s.Name == name {
			return s.Desc
		}
	}
	return name
}

// mergeSlots copies non-empty extracted values over the accumulated slots.
// Empty and null extractions never erase a value from an earlier turn.
func mergeSlots(slots, extracted map[string]string) {
	for k, v := range extracted {
		if v != "" {
			slots[k] = v
		}
	}
}

var (
	fencedDictPattern = regexp.MustCompile("(?s)```(?:python|json)?\\s*(\\{.*?\\})\\s*```")
	firstDigitPattern = regexp.MustCompile(`\d+`)
)

// extractSlots pulls a flat string map out of a model reply. The reply may be
// bare JSON or JSON wrapped in a fenced code block; nulls and non-string
// scalars are coerced, nested values dropped.
func extractSlots(text string) (map[string]string, error) {
	raw := strings.TrimSpace(text)
	if m := fencedDictPattern.FindStringSubmatch(raw); m != nil {
		raw = m[1]
	}

	var loose map[string]any
	if err := json.Unmarshal([]byte(raw), &loose); err != nil {
		return nil, fmt.Errorf("reply is not a parameter object: %w", err)
	}

	slots := map[string]string{}
	for k, v := range loose {
		switch val := v.(type) {
		case nil:
			// unfilled, keep absent
		case string:
			if val != "" && val != "None" && val != "null" {
				slots[k] = val
			}
		case float64:
			slots[k] = strings.TrimSuffix(fmt.Sprintf("%v", val), ".0")
		case bool:
			slots[k] = fmt.Sprintf("%v", val)
		}
	}
	return slots, nil
}

// parseControlType extracts the first integer from a classification reply.
func parseControlType(text string) (int, error) {
	m := firstDigitPattern.FindString(text)
	if m == "" {
		return 0, fmt.Errorf("no control code in reply %q", text)
	}
	var code int
	if _, err := fmt.Sscanf(m, "%d", &code); err != nil {
		return 0, fmt.Errorf("parse control code %q: %w", m, err)
	}
	return code, nil
}

// sortedSlotNames renders a deterministic view of a slot map for logging.
func sortedSlotNames(slots map[string]string) []string {
	names := make([]string, 0, len(slots))
	for k := range slots {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
