package businessflow_test

import (
	"context"
	"sync"
	"testing"

	"github.com/amirphl/affiliate-engine/app/services"
	businessflow "github.com/amirphl/affiliate-engine/business_flow"
	"github.com/amirphl/affiliate-engine/config"
	"github.com/amirphl/affiliate-engine/repository"
	testingutil "github.com/amirphl/affiliate-engine/testing"
	"github.com/stretchr/testify/mock"
)

// mockNotifier records every notification it is asked to send
type mockNotifier struct {
	mock.Mock

	mu   sync.Mutex
	sent []services.NotificationPayload
}

func newMockNotifier(err error) *mockNotifier {
	n := &mockNotifier{}
	n.On("Notify", mock.Anything, mock.Anything, mock.Anything).Return(err)
	return n
}

func (m *mockNotifier) Notify(ctx context.Context, recipient services.Recipient, payload services.NotificationPayload) error {
	m.mu.Lock()
	m.sent = append(m.sent, payload)
	m.mu.Unlock()
	args := m.Called(ctx, recipient, payload)
	return args.Error(0)
}

func (m *mockNotifier) payloads() []services.NotificationPayload {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]services.NotificationPayload(nil), m.sent...)
}

// mockPayoutGateway stands in for the payout provider
type mockPayoutGateway struct {
	mock.Mock
}

func (m *mockPayoutGateway) CreatePayout(ctx context.Context, req services.PayoutRequest) (*services.PayoutResult, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*services.PayoutResult)
	return resp, args.Error(1)
}

// flowEnv wires repositories and flows against one test database
type flowEnv struct {
	testDB   *testingutil.TestDB
	fixtures *testingutil.TestFixtures
	notifier *mockNotifier
	idGen    services.IDGenerator

	userRepo       repository.AffiliateUserRepository
	campaignRepo   repository.CampaignRepository
	configRepo     repository.PlatformConfigRepository
	commissionRepo repository.CommissionRecordRepository
	walletRepo     repository.WalletRepository
	dailyRepo      repository.DailyActionCounterRepository
	tierRepo       repository.TierRepository
	progressRepo   repository.UserTierProgressRepository
	rewardLogRepo  repository.RewardLogRepository
	withdrawalRepo repository.WithdrawalRepository
	runRepo        repository.SettlementRunRepository

	ledger businessflow.WalletLedger
	tiers  businessflow.TierProgressionFlow
}

func newFlowEnv(t *testing.T, testDB *testingutil.TestDB) *flowEnv {
	t.Helper()
	db := testDB.DB
	env := &flowEnv{
		testDB:         testDB,
		fixtures:       testingutil.NewTestFixtures(testDB),
		notifier:       newMockNotifier(nil),
		idGen:          services.NewIDGenerator(),
		userRepo:       repository.NewAffiliateUserRepository(db),
		campaignRepo:   repository.NewCampaignRepository(db),
		configRepo:     repository.NewPlatformConfigRepository(db),
		commissionRepo: repository.NewCommissionRecordRepository(db),
		walletRepo:     repository.NewWalletRepository(db),
		dailyRepo:      repository.NewDailyActionCounterRepository(db),
		tierRepo:       repository.NewTierRepository(db),
		progressRepo:   repository.NewUserTierProgressRepository(db),
		rewardLogRepo:  repository.NewRewardLogRepository(db),
		withdrawalRepo: repository.NewWithdrawalRepository(db),
		runRepo:        repository.NewSettlementRunRepository(db),
	}
	env.ledger = businessflow.NewWalletLedger(env.walletRepo, env.idGen, db)
	env.tiers = businessflow.NewTierProgressionFlow(env.tierRepo, env.progressRepo, env.rewardLogRepo, env.notifier, env.idGen, db)
	return env
}

func (e *flowEnv) settlement(notifier services.NotificationService, locker businessflow.RunLocker) businessflow.SettlementFlow {
	return businessflow.NewSettlementFlow(
		e.commissionRepo, e.campaignRepo, e.userRepo, e.dailyRepo, e.runRepo,
		e.ledger, notifier, locker, e.testDB.DB,
		config.SettlementConfig{BatchSize: 2},
	)
}

func (e *flowEnv) tracking() businessflow.TrackingFlow {
	return businessflow.NewTrackingFlow(
		e.userRepo, e.campaignRepo, e.configRepo, e.commissionRepo, e.dailyRepo,
		e.tiers, e.idGen, e.testDB.DB,
	)
}

func (e *flowEnv) rewards() businessflow.RewardClaimFlow {
	return businessflow.NewRewardClaimFlow(e.rewardLogRepo, e.notifier, e.idGen, e.testDB.DB)
}

func (e *flowEnv) withdrawals(gateway services.PayoutGateway, secret string) businessflow.WithdrawalFlow {
	return businessflow.NewWithdrawalFlow(
		e.withdrawalRepo, e.userRepo, e.ledger, gateway, e.notifier, e.idGen, e.testDB.DB, secret,
	)
}

func (e *flowEnv) affiliateAdmin() businessflow.AffiliateAdminFlow {
	return businessflow.NewAffiliateAdminFlow(
		e.userRepo, e.campaignRepo, e.configRepo, e.commissionRepo, e.ledger, e.idGen, e.testDB.DB,
	)
}
