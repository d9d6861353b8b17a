package enforce

import "fmt"

// SubChannels はグループ内で扱うトピック（サブチャンネル）のID。
type SubChannels struct {
	General      int
	Application  int
	Tutorial     int
	Report       int
	Announcement int
}

// Name はトピックIDの表示名を返す。未知のIDは "unknown(<id>)" とする。
func (s SubChannels) Name(id int) string {
	switch id {
	case s.General:
		return "general"
	case s.Application:
		return "application"
	case s.Tutorial:
		return "tutorial"
	case s.Report:
		return "report"
	case s.Announcement:
		return "announcement"
	default:
		return fmt.Sprintf("unknown(%d)", id)
	}
}
