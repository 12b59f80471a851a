package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"eco-challenge-engine/cache"
	"eco-challenge-engine/logger"
	"eco-challenge-engine/repositories"
)

type Scope string

const (
	ScopeGlobal Scope = "global"
	ScopeSchool Scope = "school"
)

type Period string

const (
	PeriodAll   Period = "all"
	PeriodMonth Period = "month"
	PeriodWeek  Period = "week"
)

const (
	DefaultLeaderboardLimit = 10
	MaxLeaderboardLimit     = 100
)

func ParseScope(s string) (Scope, error) {
	switch Scope(strings.ToLower(strings.TrimSpace(s))) {
	case "", ScopeGlobal:
		return ScopeGlobal, nil
	case ScopeSchool:
		return ScopeSchool, nil
	}
	return "", validationErr("unknown leaderboard scope %q", s)
}

func ParsePeriod(s string) (Period, error) {
	switch Period(strings.ToLower(strings.TrimSpace(s))) {
	case "", PeriodAll:
		return PeriodAll, nil
	case PeriodMonth:
		return PeriodMonth, nil
	case PeriodWeek:
		return PeriodWeek, nil
	}
	return "", validationErr("unknown leaderboard period %q", s)
}

// WindowStart returns the inclusive lower bound of a period, or nil for
// all-time. month starts on the 1st at 00:00 and week on Monday 00:00, both
// in loc. The result is in UTC.
func WindowStart(p Period, now time.Time, loc *time.Location) *time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	var start time.Time
	switch p {
	case PeriodMonth:
		start = time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
	case PeriodWeek:
		offset := (int(local.Weekday()) + 6) % 7
		start = time.Date(local.Year(), local.Month(), local.Day()-offset, 0, 0, 0, 0, loc)
	default:
		return nil
	}
	start = start.UTC()
	return &start
}

// Standing is one ranked subject: a user or a school.
type Standing struct {
	Rank             int     `json:"rank"`
	SubjectID        string  `json:"subject_id"`
	Points           int64   `json:"points"`
	Badges           int64   `json:"badges"`
	Students         int64   `json:"students,omitempty"`
	PointsPerStudent float64 `json:"points_per_student,omitempty"`
}

// Less is the leaderboard order: points desc, badges desc, subject id asc.
// It is total as long as subject ids are unique.
func Less(a, b Standing) bool {
	if a.Points != b.Points {
		return a.Points > b.Points
	}
	if a.Badges != b.Badges {
		return a.Badges > b.Badges
	}
	return a.SubjectID < b.SubjectID
}

func SortStandings(rows []Standing) {
	sort.Slice(rows, func(i, j int) bool { return Less(rows[i], rows[j]) })
}

// AssignRanks numbers an already sorted slice 1..n.
func AssignRanks(rows []Standing) {
	for i := range rows {
		rows[i].Rank = i + 1
	}
}

// CountAhead is the number of subjects strictly ahead of s.
func CountAhead(rows []Standing, s Standing) int {
	n := 0
	for _, r := range rows {
		if r.SubjectID != s.SubjectID && Less(r, s) {
			n++
		}
	}
	return n
}

type Leaderboard struct {
	Scope       Scope      `json:"scope"`
	Period      Period     `json:"period"`
	SchoolID    string     `json:"school_id,omitempty"`
	WindowStart *time.Time `json:"window_start,omitempty"`
	Ranked      int        `json:"ranked"`
	Entries     []Standing `json:"entries"`
}

type Position struct {
	Scope     Scope  `json:"scope"`
	Period    Period `json:"period"`
	SubjectID string `json:"subject_id,omitempty"`
	Ranked    bool   `json:"ranked"`
	Rank      int    `json:"rank,omitempty"`
	Points    int64  `json:"points"`
	Badges    int64  `json:"badges"`
	OutOf     int    `json:"out_of"`
}

type LeaderboardService struct {
	Repos    *repositories.Repos
	Cache    cache.LeaderboardCache
	Clock    clockwork.Clock
	Location *time.Location
	TTL      time.Duration
	log      *logger.Logger
}

func NewLeaderboardService(repos *repositories.Repos, c cache.LeaderboardCache, clock clockwork.Clock, loc *time.Location, ttl time.Duration, log *logger.Logger) *LeaderboardService {
	if c == nil {
		c = cache.Nop{}
	}
	if loc == nil {
		loc = time.UTC
	}
	return &LeaderboardService{
		Repos:    repos,
		Cache:    c,
		Clock:    clock,
		Location: loc,
		TTL:      ttl,
		log:      log.With("service", "LeaderboardService"),
	}
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLeaderboardLimit
	}
	if limit > MaxLeaderboardLimit {
		return MaxLeaderboardLimit
	}
	return limit
}

// Rank returns the top of a leaderboard.
func (s *LeaderboardService) Rank(ctx context.Context, scope Scope, period Period, limit int) (*Leaderboard, error) {
	since := WindowStart(period, s.Clock.Now(), s.Location)
	all, err := s.standings(ctx, scope, period, since, "")
	if err != nil {
		return nil, err
	}
	return board(scope, period, "", since, all, clampLimit(limit)), nil
}

// RankSchoolStudents ranks the students of one school against each other.
func (s *LeaderboardService) RankSchoolStudents(ctx context.Context, schoolID string, period Period, limit int) (*Leaderboard, error) {
	since := WindowStart(period, s.Clock.Now(), s.Location)
	all, err := s.standings(ctx, ScopeGlobal, period, since, schoolID)
	if err != nil {
		return nil, err
	}
	return board(ScopeGlobal, period, schoolID, since, all, clampLimit(limit)), nil
}

func board(scope Scope, period Period, schoolID string, since *time.Time, all []Standing, limit int) *Leaderboard {
	top := all
	if len(top) > limit {
		top = top[:limit]
	}
	entries := make([]Standing, len(top))
	copy(entries, top)
	return &Leaderboard{
		Scope:       scope,
		Period:      period,
		SchoolID:    schoolID,
		WindowStart: since,
		Ranked:      len(all),
		Entries:     entries,
	}
}

// PositionOf ranks one user (global scope) or the user's school (school
// scope) as 1 + the number of subjects strictly ahead.
func (s *LeaderboardService) PositionOf(ctx context.Context, userID string, scope Scope, period Period) (*Position, error) {
	pos := &Position{Scope: scope, Period: period, SubjectID: userID}
	if scope == ScopeSchool {
		schoolID, err := s.Repos.Schools.SchoolOf(ctx, nil, userID)
		if err != nil {
			return nil, storageErr("load school", err)
		}
		if schoolID == "" {
			pos.SubjectID = ""
			return pos, nil
		}
		pos.SubjectID = schoolID
	}

	since := WindowStart(period, s.Clock.Now(), s.Location)
	all, err := s.standings(ctx, scope, period, since, "")
	if err != nil {
		return nil, err
	}
	pos.OutOf = len(all)
	for _, row := range all {
		if row.SubjectID == pos.SubjectID {
			pos.Ranked = true
			pos.Rank = CountAhead(all, row) + 1
			pos.Points = row.Points
			pos.Badges = row.Badges
			break
		}
	}
	return pos, nil
}

// standings returns the full ranked list, served from cache when the ledger
// generation has not moved since it was computed.
func (s *LeaderboardService) standings(ctx context.Context, scope Scope, period Period, since *time.Time, schoolID string) ([]Standing, error) {
	gen, err := s.Cache.Generation(ctx)
	cacheable := err == nil
	if err != nil {
		s.log.Warn("leaderboard cache unavailable", "error", err)
	}

	window := "all"
	if since != nil {
		window = since.Format(time.RFC3339)
	}
	key := fmt.Sprintf("board:g%d:%s:%s:%s:%s", gen, scope, period, window, schoolID)

	if cacheable {
		var cached []Standing
		found, err := s.Cache.Get(ctx, key, &cached)
		if err != nil {
			s.log.Warn("leaderboard cache read failed", "key", key, "error", err)
		}
		if found {
			return cached, nil
		}
	}

	var rows []Standing
	switch {
	case schoolID != "":
		rows, err = s.schoolStudentStandings(ctx, schoolID, since)
	case scope == ScopeSchool:
		rows, err = s.schoolStandings(ctx, since)
	default:
		rows, err = s.userStandings(ctx, since, nil)
	}
	if err != nil {
		return nil, err
	}
	SortStandings(rows)
	AssignRanks(rows)

	if cacheable && s.TTL > 0 {
		if err := s.Cache.Set(ctx, key, rows, s.TTL); err != nil {
			s.log.Warn("leaderboard cache write failed", "key", key, "error", err)
		}
	}
	return rows, nil
}

func (s *LeaderboardService) userStandings(ctx context.Context, since *time.Time, userIDs []string) ([]Standing, error) {
	totals, err := s.Repos.Standings.UserTotals(ctx, nil, since, userIDs)
	if err != nil {
		return nil, storageErr("sum user points", err)
	}
	totals = positive(totals)
	if len(totals) == 0 {
		return []Standing{}, nil
	}
	badges, err := s.Repos.Standings.BadgeCounts(ctx, nil, userIDsOf(totals))
	if err != nil {
		return nil, storageErr("count badges", err)
	}

	rows := make([]Standing, 0, len(totals))
	for _, t := range totals {
		rows = append(rows, Standing{SubjectID: t.UserID, Points: t.Points, Badges: badges[t.UserID]})
	}
	return rows, nil
}

func (s *LeaderboardService) schoolStudentStandings(ctx context.Context, schoolID string, since *time.Time) ([]Standing, error) {
	students, err := s.Repos.Schools.StudentsOf(ctx, nil, schoolID)
	if err != nil {
		return nil, storageErr("list students", err)
	}
	if len(students) == 0 {
		return []Standing{}, nil
	}
	return s.userStandings(ctx, since, students)
}

// schoolStandings ranks schools by the summed window points of their
// students. Schools without students never appear.
func (s *LeaderboardService) schoolStandings(ctx context.Context, since *time.Time) ([]Standing, error) {
	totals, err := s.Repos.Standings.UserTotals(ctx, nil, since, nil)
	if err != nil {
		return nil, storageErr("sum user points", err)
	}
	students, err := s.Repos.Standings.SchoolStudentCounts(ctx, nil)
	if err != nil {
		return nil, storageErr("count students", err)
	}

	var members []repositories.UserTotal
	for _, t := range totals {
		if t.SchoolID != nil && *t.SchoolID != "" {
			members = append(members, t)
		}
	}
	badges, err := s.Repos.Standings.BadgeCounts(ctx, nil, userIDsOf(members))
	if err != nil {
		return nil, storageErr("count badges", err)
	}

	bySchool := map[string]*Standing{}
	for _, t := range members {
		id := *t.SchoolID
		if students[id] == 0 {
			continue
		}
		row, ok := bySchool[id]
		if !ok {
			row = &Standing{SubjectID: id, Students: students[id]}
			bySchool[id] = row
		}
		row.Points += t.Points
		row.Badges += badges[t.UserID]
	}

	rows := make([]Standing, 0, len(bySchool))
	for _, row := range bySchool {
		if row.Points <= 0 {
			continue
		}
		row.PointsPerStudent = float64(row.Points) / float64(row.Students)
		rows = append(rows, *row)
	}
	return rows, nil
}

func positive(totals []repositories.UserTotal) []repositories.UserTotal {
	out := totals[:0]
	for _, t := range totals {
		if t.Points > 0 {
			out = append(out, t)
		}
	}
	return out
}

func userIDsOf(totals []repositories.UserTotal) []string {
	ids := make([]string, 0, len(totals))
	for _, t := range totals {
		ids = append(ids, t.UserID)
	}
	return ids
}
