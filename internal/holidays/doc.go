// Package holidays keeps a two-slot (today/tomorrow) cache of calend.ru
// holidays on disk, refreshes it from the remote page and formats digests.
//
// All dates are calendar dates in the bot's target zone; callers pass "now"
// explicitly so the 23:45 day-boundary rule is deterministic under test.
package holidays
