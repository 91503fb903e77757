package main

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"
	"github.com/sourcegraph/conc/iter"
	"github.com/spf13/cobra"

	"aaudSwap/internal/config"
	"aaudSwap/internal/model"
	"aaudSwap/internal/readiness"
)

type tokenRow struct {
	token      model.Token
	meta       model.TokenMeta
	metaErr    error
	snapshot   model.TokenSnapshot
	swapped    *big.Int
	swappedErr error
}

func runTokens(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	owner, _ := a.walletOwner()

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " Reading token details..."
	s.Start()

	rows := iter.Map(a.cfg.Tokens, func(token *model.Token) tokenRow {
		row := tokenRow{token: *token}
		row.meta, row.metaErr = a.reader.TokenInfo(a.ctx, token.Address)
		row.snapshot = a.reader.Refresh(a.ctx, token.Address, owner, model.FieldsAll)
		row.swapped, row.swappedErr = a.reader.TotalSwapped(a.ctx, token.Address)
		return row
	})
	stable := a.reader.Refresh(a.ctx, a.stablecoin, owner, model.FieldBalance|model.FieldDecimals)
	stableMeta, stableErr := a.reader.TokenInfo(a.ctx, a.stablecoin)
	s.Stop()

	fmt.Println("\n" + strings.Repeat("=", 90))
	color.Green("  WHITELISTED TOKENS (%s)", config.ChainName(a.cfg.ChainID))
	fmt.Println(strings.Repeat("=", 90))

	for _, row := range rows {
		name := row.token.Name
		if row.metaErr == nil && row.meta.Name != "" {
			name = row.meta.Name
		}
		fmt.Printf("\n  %-8s %s\n", color.YellowString(row.token.Symbol), name)
		fmt.Printf("    Address:       %s\n", color.HiBlackString(row.token.Address.Hex()))
		if row.metaErr != nil {
			fmt.Printf("    Details:       %s\n", color.RedString("unavailable: %v", row.metaErr))
		} else {
			fmt.Printf("    Decimals:      %d\n", row.meta.Decimals)
		}
		fmt.Printf("    Whitelisted:   %s\n", formatWhitelisted(row.snapshot))
		if row.snapshot.RawBalance != nil && row.snapshot.Decimals != nil {
			fmt.Printf("    Balance:       %s\n", readiness.FormatRaw(row.snapshot.RawBalance, *row.snapshot.Decimals))
		}
		if row.swappedErr == nil && row.snapshot.Decimals != nil {
			fmt.Printf("    Total swapped: %s\n", readiness.FormatRaw(row.swapped, *row.snapshot.Decimals))
		}
	}

	fmt.Println("\n" + strings.Repeat("-", 90))
	symbol := "stablecoin"
	if stableErr == nil && stableMeta.Symbol != "" {
		symbol = stableMeta.Symbol
	}
	fmt.Printf("  Receive token:   %s %s\n", color.CyanString(symbol), color.HiBlackString(a.stablecoin.Hex()))
	if stable.RawBalance != nil && stable.Decimals != nil {
		fmt.Printf("  Balance:         %s %s\n", readiness.FormatRaw(stable.RawBalance, *stable.Decimals), symbol)
	}
	fmt.Println(strings.Repeat("=", 90))
	fmt.Printf("\nTotal: %d tokens\n\n", len(rows))
	return nil
}

func formatWhitelisted(snap model.TokenSnapshot) string {
	switch {
	case snap.Whitelisted == nil:
		return color.RedString("unknown")
	case *snap.Whitelisted:
		return color.GreenString("yes")
	default:
		return color.RedString("no")
	}
}

func (a *app) walletOwner() (common.Address, bool) {
	view, err := a.session.View(a.ctx)
	if err != nil || !view.Connected {
		return common.Address{}, false
	}
	return view.Owner, true
}
