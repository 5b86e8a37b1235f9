// Package testing provides test utilities and database setup for testing the subscription delivery system
package testing

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/amirphl/Hachiko/models"
	"github.com/amirphl/Hachiko/recurrence"
	"github.com/amirphl/Hachiko/utils"
	"github.com/lib/pq"
)

// TestFixtures provides helper methods for creating test data
type TestFixtures struct {
	DB *TestDB
}

// NewTestFixtures creates a new test fixtures instance
func NewTestFixtures(db *TestDB) *TestFixtures {
	return &TestFixtures{DB: db}
}

// CreateTestTeam creates an active team with a recent activity timestamp
func (tf *TestFixtures) CreateTestTeam() (*models.Team, error) {
	lastActive := utils.UTCNow().Add(-time.Hour)
	team := &models.Team{
		Name:         fmt.Sprintf("Test Team %d", rand.Intn(100000)),
		IsActive:     utils.ToPtr(true),
		LastActiveAt: &lastActive,
	}

	if err := tf.DB.DB.Create(team).Error; err != nil {
		return nil, fmt.Errorf("failed to create test team: %w", err)
	}
	return team, nil
}

// CreateTestReport creates a report owned by the given team
func (tf *TestFixtures) CreateTestReport(teamID uint, name string) (*models.Report, error) {
	report := &models.Report{
		TeamID:    teamID,
		Name:      name,
		CreatedBy: 1,
	}

	if err := tf.DB.DB.Create(report).Error; err != nil {
		return nil, fmt.Errorf("failed to create test report: %w", err)
	}
	return report, nil
}

// CreateTestDashboard creates a dashboard with one tile per report, laid out
// in a single column so the delivery order matches the report order given.
func (tf *TestFixtures) CreateTestDashboard(teamID uint, reports []*models.Report) (*models.Dashboard, error) {
	dashboard := &models.Dashboard{
		TeamID:    teamID,
		Name:      fmt.Sprintf("Test Dashboard %d", rand.Intn(100000)),
		CreatedBy: 1,
	}

	if err := tf.DB.DB.Create(dashboard).Error; err != nil {
		return nil, fmt.Errorf("failed to create test dashboard: %w", err)
	}

	for i, report := range reports {
		tile := &models.DashboardTile{
			DashboardID: dashboard.ID,
			ReportID:    report.ID,
			LayoutRow:   i,
			LayoutCol:   0,
		}
		if err := tf.DB.DB.Create(tile).Error; err != nil {
			return nil, fmt.Errorf("failed to create test dashboard tile: %w", err)
		}
	}

	return dashboard, nil
}

// DailySchedule returns a simple daily recurrence anchored at the given start
func DailySchedule(start time.Time) recurrence.Schedule {
	return recurrence.Schedule{
		Frequency: recurrence.FreqDaily,
		Interval:  1,
		Start:     start,
	}
}

// CreateTestEmailSubscription creates a due email subscription targeting a report
func (tf *TestFixtures) CreateTestEmailSubscription(teamID, reportID uint, recipients []string) (*models.Subscription, error) {
	nextDue := utils.UTCNow().Add(-time.Minute)
	subscription := &models.Subscription{
		TeamID:     teamID,
		ReportID:   &reportID,
		Channel:    models.ChannelEmail,
		Recipients: pq.StringArray(recipients),
		Title:      "Test Email Subscription",
		Recurrence: models.RecurrenceSpec{Schedule: DailySchedule(utils.UTCNow().Add(-24 * time.Hour))},
		NextDueAt:  &nextDue,
		CreatedBy:  1,
	}

	if err := tf.DB.DB.Create(subscription).Error; err != nil {
		return nil, fmt.Errorf("failed to create test subscription: %w", err)
	}
	return subscription, nil
}

// CreateTestSlackSubscription creates a due slack subscription targeting a dashboard
func (tf *TestFixtures) CreateTestSlackSubscription(teamID, dashboardID uint, channelID string) (*models.Subscription, error) {
	nextDue := utils.UTCNow().Add(-time.Minute)
	channelName := "test-channel"
	subscription := &models.Subscription{
		TeamID:           teamID,
		DashboardID:      &dashboardID,
		Channel:          models.ChannelSlack,
		SlackChannelID:   &channelID,
		SlackChannelName: &channelName,
		Title:            "Test Slack Subscription",
		Recurrence:       models.RecurrenceSpec{Schedule: DailySchedule(utils.UTCNow().Add(-24 * time.Hour))},
		NextDueAt:        &nextDue,
		CreatedBy:        1,
	}

	if err := tf.DB.DB.Create(subscription).Error; err != nil {
		return nil, fmt.Errorf("failed to create test subscription: %w", err)
	}
	return subscription, nil
}
