package trade

import (
	"context"
	"errors"
	"testing"
	"time"

	"solbot/internal/alerts"
	"solbot/internal/events"
	"solbot/internal/ledger"
	"solbot/pkg/jupiter"
	"solbot/pkg/market/dexscreener"
	"solbot/pkg/solana"
)

type fakeAgg struct {
	quoteCalls int
	buildCalls int
	noRoute    bool
	outAmount  uint64
}

func (f *fakeAgg) GetQuote(ctx context.Context, in, out string, amount uint64, slippageBps int) (*jupiter.Quote, error) {
	f.quoteCalls++
	if f.noRoute {
		return nil, jupiter.ErrNoRoute
	}
	return &jupiter.Quote{InputMint: in, OutputMint: out, InAmount: amount, OutAmount: f.outAmount}, nil
}

func (f *fakeAgg) BuildSwap(ctx context.Context, q *jupiter.Quote, userPublicKey string, priorityFeeLamports uint64) (string, error) {
	f.buildCalls++
	return "cGF5bG9hZA==", nil
}

type fakeChain struct {
	sendCalls    int
	failSends    int // first N sends fail
	neverConfirm bool
	lamports     uint64                           // SOL balance; 0 means plenty
	tokenAccts   map[string][]solana.TokenAccount // key: owner
}

func (f *fakeChain) GetBalance(ctx context.Context, address string) (uint64, error) {
	if f.lamports == 0 {
		return 100_000_000_000, nil
	}
	return f.lamports, nil
}

func (f *fakeChain) GetLatestBlockhash(ctx context.Context) (string, error) {
	return "FakeB1ockhash1111111111111111111111111111111", nil
}

func (f *fakeChain) SendRawTransaction(ctx context.Context, txBase64 string) (string, error) {
	f.sendCalls++
	if f.sendCalls <= f.failSends {
		return "", errors.New("blockhash not found")
	}
	return "testsig", nil
}

func (f *fakeChain) ConfirmationStatus(ctx context.Context, sig string) (bool, bool, error) {
	if f.neverConfirm {
		return false, false, nil
	}
	return true, true, nil
}

func (f *fakeChain) GetTokenAccountsByOwner(ctx context.Context, owner, mint string) ([]solana.TokenAccount, error) {
	return f.tokenAccts[owner], nil
}

type fakePrices struct{ info dexscreener.TokenInfo }

func (f *fakePrices) GetTokenInfo(ctx context.Context, mint string) (*dexscreener.TokenInfo, error) {
	info := f.info
	info.Mint = mint
	return &info, nil
}

type fakeSigner struct {
	signCalls int
	addr      string
}

func (f *fakeSigner) PublicAddress() string { return f.addr }
func (f *fakeSigner) SignAggregatorTx(payload string) (string, error) {
	f.signCalls++
	return payload, nil
}
func (f *fakeSigner) BuildTransfer(to, blockhash string, lamports uint64) (string, error) {
	return "dHJhbnNmZXI=", nil
}
func (f *fakeSigner) BuildTokenTransfer(src, dst, blockhash string, raw uint64) (string, error) {
	return "dG9rZW4=", nil
}

func newExecutor(agg *fakeAgg, chain *fakeChain, prices *fakePrices) (*Executor, *ledger.Store, *alerts.Store) {
	ledgerStore := ledger.NewStore(nil)
	alertStore := alerts.NewStore(nil)
	ex := &Executor{
		Ledger:           ledgerStore,
		Alerts:           alertStore,
		Agg:              agg,
		Chain:            chain,
		Prices:           prices,
		Bus:              events.NewBus(),
		BroadcastRetries: 3,
		ConfirmTimeout:   time.Second,
		ConfirmPoll:      time.Millisecond,
	}
	return ex, ledgerStore, alertStore
}

func TestExecuteBuyRecordsFillAndAlerts(t *testing.T) {
	agg := &fakeAgg{outAmount: 1000}
	chain := &fakeChain{}
	prices := &fakePrices{info: dexscreener.TokenInfo{Symbol: "AAA", Name: "Token A", PriceUSD: 2.0, PriceNative: 0.001}}
	ex, ledgerStore, alertStore := newExecutor(agg, chain, prices)

	acct := ledgerStore.Get(1)
	signer := &fakeSigner{addr: "owner"}
	rcpt, err := ex.ExecuteBuy(context.Background(), acct, signer, "mintA", 0.5, 10, 20)
	if err != nil {
		t.Fatalf("ExecuteBuy returned error: %v", err)
	}
	if rcpt.Signature != "testsig" || rcpt.OutAmount != 1000 {
		t.Fatalf("receipt=%+v, expected testsig/1000", rcpt)
	}
	if !rcpt.TPSet || !rcpt.SLSet {
		t.Fatalf("receipt alert flags=%v/%v, expected both set", rcpt.TPSet, rcpt.SLSet)
	}

	acct = ledgerStore.Get(1)
	pos, ok := acct.Position("mintA")
	if !ok {
		t.Fatal("position not recorded")
	}
	if pos.Amount != 1000 || pos.SolSpent != 0.5 {
		t.Fatalf("position=%+v, expected amount 1000, cost 0.5", pos)
	}

	list := alertStore.ForAccount(1)
	if len(list) != 2 {
		t.Fatalf("alerts=%d, expected TP and SL", len(list))
	}
	for _, a := range list {
		switch a.Kind {
		case alerts.KindTakeProfit:
			if a.Direction != alerts.DirAbove || a.TargetPrice != 2.2 {
				t.Fatalf("tp alert=%+v, expected above 2.2", a)
			}
		case alerts.KindStopLoss:
			if a.Direction != alerts.DirBelow || a.TargetPrice != 1.6 {
				t.Fatalf("sl alert=%+v, expected below 1.6", a)
			}
		default:
			t.Fatalf("unexpected alert kind %s", a.Kind)
		}
	}
}

func TestExecuteBuyKeepsFeeReserve(t *testing.T) {
	// 0.505 SOL cannot cover a 0.5 SOL buy once the 0.01 reserve is held back.
	agg := &fakeAgg{outAmount: 1}
	chain := &fakeChain{lamports: 505_000_000}
	ex, ledgerStore, _ := newExecutor(agg, chain, &fakePrices{})

	acct := ledgerStore.Get(1)
	_, err := ex.ExecuteBuy(context.Background(), acct, &fakeSigner{addr: "owner"}, "mintA", 0.5, 0, 0)
	if !errors.Is(err, ErrNoBalance) {
		t.Fatalf("error=%v, expected ErrNoBalance", err)
	}
	if agg.quoteCalls != 0 {
		t.Fatalf("quoteCalls=%d, expected no quote without funds", agg.quoteCalls)
	}

	chain.lamports = 520_000_000
	if _, err := ex.ExecuteBuy(context.Background(), acct, &fakeSigner{addr: "owner"}, "mintA", 0.5, 0, 0); err != nil {
		t.Fatalf("buy with reserve covered returned error: %v", err)
	}
}

func TestExecuteBuyNoRouteLeavesLedgerUntouched(t *testing.T) {
	agg := &fakeAgg{noRoute: true}
	ex, ledgerStore, alertStore := newExecutor(agg, &fakeChain{}, &fakePrices{})

	acct := ledgerStore.Get(1)
	_, err := ex.ExecuteBuy(context.Background(), acct, &fakeSigner{}, "mintA", 0.5, 0, 0)
	if !errors.Is(err, ErrNoRoute) {
		t.Fatalf("error=%v, expected ErrNoRoute", err)
	}
	if len(ledgerStore.Get(1).Positions) != 0 {
		t.Fatal("ledger mutated after a failed trade")
	}
	if alertStore.Len() != 0 {
		t.Fatal("alerts registered after a failed trade")
	}
	if agg.buildCalls != 0 {
		t.Fatalf("buildCalls=%d after no-route, expected 0", agg.buildCalls)
	}
}

func TestBroadcastRetriesAreBounded(t *testing.T) {
	chain := &fakeChain{failSends: 99}
	ex, ledgerStore, _ := newExecutor(&fakeAgg{outAmount: 1}, chain, &fakePrices{})

	acct := ledgerStore.Get(1)
	_, err := ex.ExecuteBuy(context.Background(), acct, &fakeSigner{}, "mintA", 0.5, 0, 0)
	if !errors.Is(err, ErrBroadcastFailed) {
		t.Fatalf("error=%v, expected ErrBroadcastFailed", err)
	}
	if chain.sendCalls != 3 {
		t.Fatalf("sendCalls=%d, expected exactly 3 attempts", chain.sendCalls)
	}
	if acct := ledgerStore.Get(1); acct.Stats.TotalTrades != 0 {
		t.Fatal("stats mutated after a failed broadcast")
	}
}

func TestConfirmTimeout(t *testing.T) {
	chain := &fakeChain{neverConfirm: true}
	ex, ledgerStore, _ := newExecutor(&fakeAgg{outAmount: 1}, chain, &fakePrices{})
	ex.ConfirmTimeout = 20 * time.Millisecond
	ex.ConfirmPoll = 5 * time.Millisecond

	acct := ledgerStore.Get(1)
	_, err := ex.ExecuteBuy(context.Background(), acct, &fakeSigner{}, "mintA", 0.5, 0, 0)
	if !errors.Is(err, ErrConfirmTimeout) {
		t.Fatalf("error=%v, expected ErrConfirmTimeout", err)
	}
	if len(ledgerStore.Get(1).Positions) != 0 {
		t.Fatal("ledger mutated after confirmation timeout")
	}
}

func TestExecuteSellFullCloseAlsoPurgesAlerts(t *testing.T) {
	agg := &fakeAgg{outAmount: 2_000_000_000} // 2 SOL back
	chain := &fakeChain{tokenAccts: map[string][]solana.TokenAccount{
		"owner": {{Pubkey: "tokacct", Mint: "mintA", RawAmount: 1000, Decimals: 6, UIAmount: 0.001}},
	}}
	prices := &fakePrices{info: dexscreener.TokenInfo{Symbol: "AAA", PriceNative: 3.0}}
	ex, ledgerStore, alertStore := newExecutor(agg, chain, prices)

	ledgerStore.ApplyBuyFill(1, ledger.BuyFill{Mint: "mintA", Symbol: "AAA", PriceNative: 2.0, Amount: 1000, SolSpent: 1.0})
	alertStore.Add(alerts.Alert{AccountID: 1, Mint: "mintA", Kind: alerts.KindTakeProfit})

	acct := ledgerStore.Get(1)
	rcpt, err := ex.ExecuteSell(context.Background(), acct, &fakeSigner{addr: "owner"}, "mintA", 100)
	if err != nil {
		t.Fatalf("ExecuteSell returned error: %v", err)
	}
	if !rcpt.Closed {
		t.Fatal("full sell did not close the position")
	}
	if rcpt.PnL != 0.5 {
		t.Fatalf("PnL=%v, expected 0.5 for entry 2.0 exit 3.0 on 1 SOL", rcpt.PnL)
	}
	if alertStore.Len() != 0 {
		t.Fatal("mint alerts survived a full close")
	}
	acct = ledgerStore.Get(1)
	if len(acct.Positions) != 0 || len(acct.History) != 1 {
		t.Fatalf("positions=%d history=%d, expected 0/1", len(acct.Positions), len(acct.History))
	}
}

func TestExecuteSellNoBalance(t *testing.T) {
	chain := &fakeChain{tokenAccts: map[string][]solana.TokenAccount{}}
	ex, ledgerStore, _ := newExecutor(&fakeAgg{}, chain, &fakePrices{})

	acct := ledgerStore.Get(1)
	_, err := ex.ExecuteSell(context.Background(), acct, &fakeSigner{addr: "owner"}, "mintA", 50)
	if !errors.Is(err, ErrNoBalance) {
		t.Fatalf("error=%v, expected ErrNoBalance", err)
	}
}

func TestInFlightLockRejectsConcurrentTrade(t *testing.T) {
	agg := &fakeAgg{}
	ex, ledgerStore, _ := newExecutor(agg, &fakeChain{}, &fakePrices{})

	acct := ledgerStore.Get(1)
	if !ledgerStore.BeginTrade(1) {
		t.Fatal("could not take the trade slot")
	}
	defer ledgerStore.EndTrade(1)

	_, err := ex.ExecuteBuy(context.Background(), acct, &fakeSigner{}, "mintA", 0.5, 0, 0)
	if !errors.Is(err, ErrTradeInFlight) {
		t.Fatalf("error=%v, expected ErrTradeInFlight", err)
	}
	if agg.quoteCalls != 0 {
		t.Fatalf("quoteCalls=%d while locked, expected 0", agg.quoteCalls)
	}
}

func TestExecuteSendTokenRequiresDestinationAccount(t *testing.T) {
	chain := &fakeChain{tokenAccts: map[string][]solana.TokenAccount{
		"owner": {{Pubkey: "src", Mint: "mintA", RawAmount: 5_000_000, Decimals: 6}},
	}}
	ex, ledgerStore, _ := newExecutor(&fakeAgg{}, chain, &fakePrices{})

	acct := ledgerStore.Get(1)
	_, err := ex.ExecuteSendToken(context.Background(), acct, &fakeSigner{addr: "owner"}, "mintA", "destowner", 1)
	if !errors.Is(err, ErrNoTokenAccount) {
		t.Fatalf("error=%v, expected ErrNoTokenAccount", err)
	}
	if chain.sendCalls != 0 {
		t.Fatalf("sendCalls=%d, expected no broadcast", chain.sendCalls)
	}
}

func TestExecuteSend(t *testing.T) {
	chain := &fakeChain{}
	ex, ledgerStore, _ := newExecutor(&fakeAgg{}, chain, &fakePrices{})

	acct := ledgerStore.Get(1)
	rcpt, err := ex.ExecuteSend(context.Background(), acct, &fakeSigner{addr: "owner"}, "dest", 0.25)
	if err != nil {
		t.Fatalf("ExecuteSend returned error: %v", err)
	}
	if rcpt.OutAmount != 250_000_000 {
		t.Fatalf("lamports=%d, expected 250000000", rcpt.OutAmount)
	}
	if chain.sendCalls != 1 {
		t.Fatalf("sendCalls=%d, expected 1", chain.sendCalls)
	}
}
