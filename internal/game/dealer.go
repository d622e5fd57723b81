package game

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"

	"example.com/cardtable/internal/protocol"
)

// Dealer runs a Lua script that decides what the table shows. The script
// sees these globals:
//
//	show(hand, table)    push a snapshot; both arguments are arrays of card ids
//	select_card(n)       prompt and wait; returns the chosen position, 1-based
//	card(rank, suit)     card id, e.g. card("queen", "hearts") == "queen_hearts"
//	log(msg)             write to the host log
//	sleep(seconds)       pause the script
type Dealer struct {
	table Table
	clock clockwork.Clock
}

func NewDealer(t Table, clock clockwork.Clock) *Dealer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Dealer{table: t, clock: clock}
}

func (d *Dealer) RunFile(ctx context.Context, path string) error {
	return d.run(ctx, func(L *lua.LState) error { return L.DoFile(path) })
}

func (d *Dealer) RunString(ctx context.Context, src string) error {
	return d.run(ctx, func(L *lua.LState) error { return L.DoString(src) })
}

func (d *Dealer) run(ctx context.Context, do func(*lua.LState) error) error {
	L := lua.NewState()
	defer L.Close()
	L.SetContext(ctx)

	L.SetGlobal("show", L.NewFunction(d.luaShow))
	L.SetGlobal("select_card", L.NewFunction(d.luaSelectCard))
	L.SetGlobal("card", L.NewFunction(luaCard))
	L.SetGlobal("log", L.NewFunction(luaLog))
	L.SetGlobal("sleep", L.NewFunction(d.luaSleep))

	if err := do(L); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("dealer script: %w", err)
	}
	return nil
}

func (d *Dealer) luaShow(L *lua.LState) int {
	hand := stringsOf(L.CheckTable(1))
	table := stringsOf(L.OptTable(2, L.NewTable()))
	if err := d.table.ShowState(protocol.Snapshot{Hand: hand, Table: table}); err != nil {
		L.RaiseError("show: %v", err)
	}
	return 0
}

func (d *Dealer) luaSelectCard(L *lua.LState) int {
	n := L.CheckInt(1)
	idx, err := d.table.SelectCard(L.Context(), n)
	if err != nil {
		L.RaiseError("select_card: %v", err)
		return 0
	}
	L.Push(lua.LNumber(idx + 1))
	return 1
}

func (d *Dealer) luaSleep(L *lua.LState) int {
	secs := float64(L.CheckNumber(1))
	select {
	case <-d.clock.After(time.Duration(secs * float64(time.Second))):
	case <-L.Context().Done():
		L.RaiseError("sleep: %v", L.Context().Err())
	}
	return 0
}

func luaCard(L *lua.LState) int {
	L.Push(lua.LString(protocol.CardID(L.CheckString(1), L.CheckString(2))))
	return 1
}

func luaLog(L *lua.LState) int {
	log.Info().Str("source", "script").Msg(L.CheckString(1))
	return 0
}

func stringsOf(t *lua.LTable) []string {
	out := make([]string, 0, t.Len())
	for i := 1; i <= t.Len(); i++ {
		out = append(out, lua.LVAsString(t.RawGetInt(i)))
	}
	return out
}
