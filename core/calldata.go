package core

// calldata.go – assembles the executor plan for a winning quote: pulls,
// approvals, per-hop router calldata and the dynamic-injection offsets that
// let the executor patch interior hop amounts at dispatch time. Selector
// and struct layouts here must match the on-chain signatures exactly: a
// single byte-offset error makes the executor overwrite the wrong word.
// -----------------------------------------------------------------------------

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

//---------------------------------------------------------------------
// Selectors
//---------------------------------------------------------------------

var (
	selSwapExactTokensForTokens = crypto.Keccak256([]byte("swapExactTokensForTokens(uint256,uint256,address[],address,uint256)"))[:4]
	// Standard layout embeds a deadline inside the params struct.
	selExactInputSingle = crypto.Keccak256([]byte("exactInputSingle((address,address,uint24,address,uint256,uint256,uint256,uint160))"))[:4]
	// Router02 layout drops the deadline field.
	selExactInputSingle02 = crypto.Keccak256([]byte("exactInputSingle((address,address,uint24,address,uint256,uint256,uint160))"))[:4]
	selWethDeposit        = crypto.Keccak256([]byte("deposit()"))[:4]
	selWethWithdraw       = crypto.Keccak256([]byte("withdraw(uint256)"))[:4]
	selExecutorExecute    = crypto.Keccak256([]byte("execute((address,uint256)[],(address,address,uint256,bool)[],(address,uint256,bytes,address,uint256)[],address[])"))[:4]
)

// Dynamic-injection byte offsets of the amountIn word per hop layout.
const (
	injectOffsetV2         = 4
	injectOffsetV3Router02 = 132
	injectOffsetV3Standard = 164
	injectOffsetWithdraw   = 4
)

// Per-leg slippage never drops below this floor so an individual split leg
// survives small price moves while the aggregate still clears its minimum.
const minLegSlippageBps = 100

const defaultDeadlineSeconds = 1200

//---------------------------------------------------------------------
// Word packing
//---------------------------------------------------------------------

func appendAddressWord(data []byte, a common.Address) []byte {
	var w [32]byte
	copy(w[12:], a.Bytes())
	return append(data, w[:]...)
}

func appendUint64Word(data []byte, v uint64) []byte {
	w := uint256.NewInt(v).Bytes32()
	return append(data, w[:]...)
}

func appendBigWord(data []byte, v *big.Int) []byte {
	var word uint256.Int
	if v != nil {
		word.SetFromBig(v)
	}
	w := word.Bytes32()
	return append(data, w[:]...)
}

func readWord(data []byte, word int) *big.Int {
	off := 4 + word*32
	return new(big.Int).SetBytes(data[off : off+32])
}

func readAddressWord(data []byte, word int) common.Address {
	off := 4 + word*32
	return common.BytesToAddress(data[off+12 : off+32])
}

//---------------------------------------------------------------------
// Hop calldata
//---------------------------------------------------------------------

// EncodeV2Swap builds swapExactTokensForTokens calldata for one hop. The
// amountIn word sits at byte offset 4 for dynamic injection.
func EncodeV2Swap(amountIn, minOut *big.Int, tokenIn, tokenOut, to common.Address, deadline int64) []byte {
	data := make([]byte, 0, 4+8*32)
	data = append(data, selSwapExactTokensForTokens...)
	data = appendBigWord(data, amountIn)
	data = appendBigWord(data, minOut)
	data = appendUint64Word(data, 160) // path array head offset
	data = appendAddressWord(data, to)
	data = appendUint64Word(data, uint64(deadline))
	data = appendUint64Word(data, 2)
	data = appendAddressWord(data, tokenIn)
	data = appendAddressWord(data, tokenOut)
	return data
}

// DecodeV2Swap reverses EncodeV2Swap for verification.
func DecodeV2Swap(data []byte) (amountIn, minOut *big.Int, path []common.Address, to common.Address, deadline int64, err error) {
	if len(data) != 4+8*32 {
		return nil, nil, nil, common.Address{}, 0, Errorf(ErrInternal, "v2 swap calldata length %d", len(data))
	}
	amountIn = readWord(data, 0)
	minOut = readWord(data, 1)
	to = readAddressWord(data, 3)
	deadline = int64(readWord(data, 4).Uint64())
	n := int(readWord(data, 5).Uint64())
	for i := 0; i < n; i++ {
		path = append(path, readAddressWord(data, 6+i))
	}
	return amountIn, minOut, path, to, deadline, nil
}

// EncodeV3ExactInputSingle builds exactInputSingle calldata in either the
// standard layout (deadline embedded) or the router02 layout (no deadline).
func EncodeV3ExactInputSingle(tokenIn, tokenOut common.Address, fee uint32, recipient common.Address, deadline int64, amountIn, minOut *big.Int, useRouter02 bool) []byte {
	if useRouter02 {
		data := make([]byte, 0, 4+7*32)
		data = append(data, selExactInputSingle02...)
		data = appendAddressWord(data, tokenIn)
		data = appendAddressWord(data, tokenOut)
		data = appendUint64Word(data, uint64(fee))
		data = appendAddressWord(data, recipient)
		data = appendBigWord(data, amountIn)
		data = appendBigWord(data, minOut)
		data = appendUint64Word(data, 0) // sqrtPriceLimitX96
		return data
	}
	data := make([]byte, 0, 4+8*32)
	data = append(data, selExactInputSingle...)
	data = appendAddressWord(data, tokenIn)
	data = appendAddressWord(data, tokenOut)
	data = appendUint64Word(data, uint64(fee))
	data = appendAddressWord(data, recipient)
	data = appendUint64Word(data, uint64(deadline))
	data = appendBigWord(data, amountIn)
	data = appendBigWord(data, minOut)
	data = appendUint64Word(data, 0)
	return data
}

// V3SwapParams is the decoded exactInputSingle tuple.
type V3SwapParams struct {
	TokenIn   common.Address
	TokenOut  common.Address
	Fee       uint32
	Recipient common.Address
	Deadline  int64
	AmountIn  *big.Int
	MinOut    *big.Int
}

// DecodeV3ExactInputSingle reverses EncodeV3ExactInputSingle.
func DecodeV3ExactInputSingle(data []byte, useRouter02 bool) (V3SwapParams, error) {
	want := 4 + 8*32
	if useRouter02 {
		want = 4 + 7*32
	}
	if len(data) != want {
		return V3SwapParams{}, Errorf(ErrInternal, "v3 swap calldata length %d, want %d", len(data), want)
	}
	p := V3SwapParams{
		TokenIn:   readAddressWord(data, 0),
		TokenOut:  readAddressWord(data, 1),
		Fee:       uint32(readWord(data, 2).Uint64()),
		Recipient: readAddressWord(data, 3),
	}
	if useRouter02 {
		p.AmountIn = readWord(data, 4)
		p.MinOut = readWord(data, 5)
		return p, nil
	}
	p.Deadline = int64(readWord(data, 4).Uint64())
	p.AmountIn = readWord(data, 5)
	p.MinOut = readWord(data, 6)
	return p, nil
}

//---------------------------------------------------------------------
// Executor envelope
//---------------------------------------------------------------------

type execTuplePull struct {
	Token  common.Address
	Amount *big.Int
}

type execTupleApproval struct {
	Token       common.Address
	Spender     common.Address
	Amount      *big.Int
	RevokeAfter bool
}

type execTupleCall struct {
	Target       common.Address
	Value        *big.Int
	Data         []byte
	InjectToken  common.Address
	InjectOffset *big.Int
}

var (
	execPullsType, _ = abi.NewType("tuple[]", "", []abi.ArgumentMarshaling{
		{Name: "token", Type: "address"},
		{Name: "amount", Type: "uint256"},
	})
	execApprovalsType, _ = abi.NewType("tuple[]", "", []abi.ArgumentMarshaling{
		{Name: "token", Type: "address"},
		{Name: "spender", Type: "address"},
		{Name: "amount", Type: "uint256"},
		{Name: "revokeAfter", Type: "bool"},
	})
	execCallsType, _ = abi.NewType("tuple[]", "", []abi.ArgumentMarshaling{
		{Name: "target", Type: "address"},
		{Name: "value", Type: "uint256"},
		{Name: "data", Type: "bytes"},
		{Name: "injectToken", Type: "address"},
		{Name: "injectOffset", Type: "uint256"},
	})
	execFlushType, _ = abi.NewType("address[]", "", nil)

	executorArguments = abi.Arguments{
		{Type: execPullsType},
		{Type: execApprovalsType},
		{Type: execCallsType},
		{Type: execFlushType},
	}
)

// EncodeExecutorEnvelope packs the four parallel arrays into the outer
// execute() calldata the executor contract consumes bit-exactly.
func EncodeExecutorEnvelope(plan *ExecutorPlan) ([]byte, error) {
	pulls := make([]execTuplePull, len(plan.Pulls))
	for i, p := range plan.Pulls {
		pulls[i] = execTuplePull{Token: p.Token, Amount: p.Amount}
	}
	approvals := make([]execTupleApproval, len(plan.Approvals))
	for i, a := range plan.Approvals {
		approvals[i] = execTupleApproval{Token: a.Token, Spender: a.Spender, Amount: a.Amount, RevokeAfter: a.RevokeAfter}
	}
	calls := make([]execTupleCall, len(plan.Calls))
	for i, c := range plan.Calls {
		value := c.Value
		if value == nil {
			value = new(big.Int)
		}
		calls[i] = execTupleCall{
			Target:       c.Target,
			Value:        value,
			Data:         c.Data,
			InjectToken:  c.InjectToken,
			InjectOffset: new(big.Int).SetUint64(c.InjectOffset),
		}
	}
	packed, err := executorArguments.Pack(pulls, approvals, calls, plan.TokensToFlush)
	if err != nil {
		return nil, WrapErr(ErrInternal, err, "pack executor envelope")
	}
	return append(append([]byte{}, selExecutorExecute...), packed...), nil
}

//---------------------------------------------------------------------
// Plan assembly
//---------------------------------------------------------------------

// PlanRequest carries the caller-facing knobs of buildSwapPlan.
type PlanRequest struct {
	Chain           *ChainConfig
	Quote           *PriceQuote
	AmountOutMin    *big.Int
	Recipient       common.Address
	SlippageBps     int
	DeadlineSeconds int64
	UseNativeInput  bool
	UseNativeOutput bool
}

// BuildExecutorPlan serializes the winning quote into one atomic executor
// invocation: deposit/pull, per-hop approvals and router calls with
// injection offsets, the optional unwrap, and the flush set.
func BuildExecutorPlan(req PlanRequest) (*ExecutorPlan, error) {
	chain, quote := req.Chain, req.Quote
	if chain == nil {
		return nil, Errorf(ErrMissingConfig, "nil chain config")
	}
	if chain.ExecutorAddress == (common.Address{}) {
		return nil, Errorf(ErrMissingConfig, "chain %s has no executor address", chain.Key)
	}
	if quote == nil || len(quote.Path) < 2 {
		return nil, Errorf(ErrInvalidRequest, "quote has no path")
	}

	slippage := clampSlippageAPI(req.SlippageBps)
	amountOutMin := req.AmountOutMin
	if amountOutMin == nil || amountOutMin.Sign() <= 0 {
		keep := 10000 - int64(slippage)
		amountOutMin = MulDiv(quote.AmountOut, big.NewInt(keep), bpsDenominator)
	}
	deadlineSeconds := req.DeadlineSeconds
	if deadlineSeconds <= 0 {
		deadlineSeconds = defaultDeadlineSeconds
	}
	deadline := time.Now().Unix() + deadlineSeconds

	plan := &ExecutorPlan{To: chain.ExecutorAddress, Value: new(big.Int)}
	flush := newAddressSet()
	inputToken := quote.Path[0].Address

	if req.UseNativeInput {
		// The executor receives native value and wraps it first; no pull.
		plan.Value = new(big.Int).Set(quote.AmountIn)
		plan.Calls = append(plan.Calls, ExecutorCall{
			Target: chain.WrappedNativeAddress,
			Value:  new(big.Int).Set(quote.AmountIn),
			Data:   append([]byte{}, selWethDeposit...),
		})
		inputToken = chain.WrappedNativeAddress
		flush.add(chain.WrappedNativeAddress)
	} else {
		plan.Pulls = append(plan.Pulls, TokenPull{Token: inputToken, Amount: new(big.Int).Set(quote.AmountIn)})
		flush.add(inputToken)
	}

	legs := []legPlan{{quote: quote, minOut: amountOutMin}}
	if quote.IsSplit {
		// Per-leg floors are looser than the aggregate minimum; each
		// leg's last hop enforces only its own floor, and the plan
		// carries no separate check of amountOutMin across legs.
		legs = splitLegPlans(quote, slippage)
	}

	var approvals []TokenApproval
	for _, leg := range legs {
		calls, legApprovals, err := buildLegCalls(chain, leg, req.Recipient, deadline, req.UseNativeOutput, flush)
		if err != nil {
			return nil, err
		}
		plan.Calls = append(plan.Calls, calls...)
		approvals = append(approvals, legApprovals...)
	}
	plan.Approvals = mergeApprovals(approvals)

	if req.UseNativeOutput {
		// Unwrap whatever wrapped native the hops delivered; the amount is
		// injected from the executor's balance at dispatch.
		plan.Calls = append(plan.Calls, ExecutorCall{
			Target:       chain.WrappedNativeAddress,
			Value:        new(big.Int),
			Data:         encodeWithdraw(new(big.Int)),
			InjectToken:  chain.WrappedNativeAddress,
			InjectOffset: injectOffsetWithdraw,
		})
		flush.add(chain.WrappedNativeAddress)
	}

	plan.TokensToFlush = flush.slice()
	data, err := EncodeExecutorEnvelope(plan)
	if err != nil {
		return nil, err
	}
	plan.Data = data
	return plan, nil
}

func encodeWithdraw(amount *big.Int) []byte {
	data := make([]byte, 0, 4+32)
	data = append(data, selWethWithdraw...)
	return appendBigWord(data, amount)
}

type legPlan struct {
	quote  *PriceQuote
	minOut *big.Int
}

// splitLegPlans derives per-leg minimums with the per-leg slippage floor.
func splitLegPlans(quote *PriceQuote, userSlippageBps uint16) []legPlan {
	// Inside quote construction slippage is bounded tighter than at the
	// API boundary, then floored so a leg survives small moves.
	legSlippage := clampSlippageQuote(int(userSlippageBps))
	if legSlippage < minLegSlippageBps {
		legSlippage = minLegSlippageBps
	}
	keep := big.NewInt(10000 - int64(legSlippage))
	legs := make([]legPlan, 0, len(quote.Splits))
	for _, s := range quote.Splits {
		legs = append(legs, legPlan{
			quote:  s.Quote,
			minOut: MulDiv(s.Quote.AmountOut, keep, bpsDenominator),
		})
	}
	return legs
}

// buildLegCalls emits the approval and router call per hop of one leg,
// wiring injection for every hop whose runtime input depends on the
// previous hop's output.
func buildLegCalls(chain *ChainConfig, leg legPlan, recipient common.Address, deadline int64, useNativeOutput bool, flush *addressSet) ([]ExecutorCall, []TokenApproval, error) {
	quote := leg.quote
	nHops := len(quote.Sources)
	if nHops == 0 || len(quote.Path) != nHops+1 {
		return nil, nil, Errorf(ErrInvalidRequest, "malformed quote path")
	}
	buffer := chain.Routing.InterhopBufferBps

	var calls []ExecutorCall
	var approvals []TokenApproval
	rolling := new(big.Int).Set(quote.AmountIn)

	for i := 0; i < nHops; i++ {
		src := quote.Sources[i]
		dex := chain.DexByID(src.DexID)
		if dex == nil {
			return nil, nil, Errorf(ErrMissingConfig, "dex %s not configured on chain %s", src.DexID, chain.Key)
		}
		hopTokenIn := quote.Path[i].Address
		hopTokenOut := quote.Path[i+1].Address
		if IsNativeToken(hopTokenIn) {
			hopTokenIn = chain.WrappedNativeAddress
		}
		if IsNativeToken(hopTokenOut) {
			hopTokenOut = chain.WrappedNativeAddress
		}

		hopAmountIn := new(big.Int).Set(src.AmountIn)
		if hopAmountIn.Cmp(rolling) > 0 {
			hopAmountIn.Set(rolling)
		}
		if i > 0 && buffer > 0 {
			// Conservative shave against upstream rounding.
			hopAmountIn.Sub(hopAmountIn, BpsOf(hopAmountIn, buffer))
		}

		scaledOut := MulDiv(src.AmountOut, hopAmountIn, src.AmountIn)
		var hopMinOut *big.Int
		if i == nHops-1 {
			hopMinOut = new(big.Int).Set(leg.minOut)
		} else {
			hopMinOut = MulDiv(scaledOut, leg.minOut, quote.AmountOut)
		}

		hopRecipient := chain.ExecutorAddress
		if i == nHops-1 && !useNativeOutput && !IsNativeToken(quote.Path[nHops].Address) {
			hopRecipient = recipient
		}
		// Flush both sides of the hop: residue can strand on either one.
		flush.add(hopTokenIn)
		flush.add(hopTokenOut)

		approvalAmount := new(big.Int).Set(hopAmountIn)
		if i > 0 {
			// Interior amounts are injected at dispatch; approve max so the
			// runtime balance always clears.
			approvalAmount = new(big.Int).Set(MaxUint256)
		}
		approvals = append(approvals, TokenApproval{
			Token:       hopTokenIn,
			Spender:     dex.RouterAddress,
			Amount:      approvalAmount,
			RevokeAfter: true,
		})

		var data []byte
		var injectOffset uint64
		switch src.Version {
		case PoolV2:
			data = EncodeV2Swap(hopAmountIn, hopMinOut, hopTokenIn, hopTokenOut, hopRecipient, deadline)
			injectOffset = injectOffsetV2
		case PoolV3:
			data = EncodeV3ExactInputSingle(hopTokenIn, hopTokenOut, src.FeeTier, hopRecipient, deadline, hopAmountIn, hopMinOut, dex.UseRouter02)
			if dex.UseRouter02 {
				injectOffset = injectOffsetV3Router02
			} else {
				injectOffset = injectOffsetV3Standard
			}
		default:
			return nil, nil, Errorf(ErrInternal, "unknown hop version %q", src.Version)
		}

		call := ExecutorCall{Target: dex.RouterAddress, Value: new(big.Int), Data: data}
		if i > 0 {
			call.InjectToken = hopTokenIn
			call.InjectOffset = injectOffset
		}
		calls = append(calls, call)
		rolling = scaledOut
	}
	return calls, approvals, nil
}

// mergeApprovals sums approvals per (token, spender), saturating at
// 2^256-1, and keeps first-seen ordering.
func mergeApprovals(in []TokenApproval) []TokenApproval {
	type key struct {
		token   common.Address
		spender common.Address
	}
	index := make(map[key]int)
	var out []TokenApproval
	for _, a := range in {
		k := key{a.Token, a.Spender}
		if i, ok := index[k]; ok {
			sum := new(big.Int).Add(out[i].Amount, a.Amount)
			if sum.Cmp(MaxUint256) > 0 {
				sum.Set(MaxUint256)
			}
			out[i].Amount = sum
			out[i].RevokeAfter = out[i].RevokeAfter || a.RevokeAfter
			continue
		}
		index[k] = len(out)
		out = append(out, TokenApproval{
			Token:       a.Token,
			Spender:     a.Spender,
			Amount:      new(big.Int).Set(a.Amount),
			RevokeAfter: a.RevokeAfter,
		})
	}
	return out
}

//---------------------------------------------------------------------
// address set
//---------------------------------------------------------------------

type addressSet struct {
	seen  map[common.Address]struct{}
	order []common.Address
}

func newAddressSet() *addressSet {
	return &addressSet{seen: make(map[common.Address]struct{})}
}

func (s *addressSet) add(a common.Address) {
	if a == (common.Address{}) {
		return
	}
	if _, ok := s.seen[a]; ok {
		return
	}
	s.seen[a] = struct{}{}
	s.order = append(s.order, a)
}

func (s *addressSet) slice() []common.Address { return s.order }
