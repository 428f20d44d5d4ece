package contracts

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// ProcessorCaller is the identity the crank settles under. Settlement is
// permissionless, so the identity is informational only.
const ProcessorCaller = "settlement-processor"

// Processor periodically settles exercised contracts that carry a
// pending balance. Either party can still settle directly; the crank
// just makes sure payouts land without anyone having to.
type Processor struct {
	service      *Service
	processDelay time.Duration
}

func NewProcessor(service *Service) *Processor {
	return &Processor{
		service:      service,
		processDelay: time.Minute,
	}
}

// Start begins the settlement processing loop
func (p *Processor) Start(ctx context.Context) {
	logger := log.With().Str("component", "settlement_processor").Logger()
	logger.Info().Msg("starting settlement processor")

	ticker := time.NewTicker(p.processDelay)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down settlement processor")
			return
		case <-ticker.C:
			if err := p.processExercisedContracts(); err != nil {
				logger.Error().Err(err).Msg("failed to process exercised contracts")
			}
		}
	}
}

func (p *Processor) processExercisedContracts() error {
	logger := log.With().Str("component", "settlement_processor").Logger()

	contracts, err := p.service.db.GetSettleableContracts()
	if err != nil {
		return err
	}

	logger.Info().Int("settleable_count", len(contracts)).Msg("processing exercised contracts")

	for _, contract := range contracts {
		if _, err := p.service.Settle(ProcessorCaller, contract.Address); err != nil {
			// Typically the seller's escrow is short; leave the contract
			// exercised and retry next tick.
			logger.Warn().
				Err(err).
				Str("contract_address", contract.Address).
				Msg("failed to settle contract")
			continue
		}

		logger.Info().
			Str("contract_address", contract.Address).
			Msg("contract settled by processor")
	}

	return nil
}
