package orderbook

import (
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
)

// prefill rests levels bids below 1000 and levels asks from 1100 up
func prefill(ob *OrderBook, levels int) {
	for i := 0; i < levels; i++ {
		ob.AddOrder(Order{
			ID: fmt.Sprintf("bid-%d", i), UserID: "mm", Side: Buy,
			Price: decimal.NewFromInt(int64(1000 - i)), Quantity: decimal.NewFromInt(100), Filled: decimal.Zero,
		})
		ob.AddOrder(Order{
			ID: fmt.Sprintf("ask-%d", i), UserID: "mm", Side: Sell,
			Price: decimal.NewFromInt(int64(1100 + i)), Quantity: decimal.NewFromInt(100), Filled: decimal.Zero,
		})
	}
}

// BenchmarkAddOrderResting measures placement that does not cross
func BenchmarkAddOrderResting(b *testing.B) {
	ob := NewOrderBook("TATA", "INR")
	prefill(ob, 100)
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		side, price := Buy, int64(1000-i%100)
		if i%2 == 0 {
			side, price = Sell, int64(1100+i%100)
		}
		ob.AddOrder(Order{
			ID: fmt.Sprintf("bench-%d", i), UserID: "u", Side: side,
			Price: decimal.NewFromInt(price), Quantity: decimal.NewFromInt(1), Filled: decimal.Zero,
		})
	}
}

// BenchmarkAddOrderCrossing alternates a resting maker with a taker that
// fully consumes it, so the book stays the same size.
func BenchmarkAddOrderCrossing(b *testing.B) {
	ob := NewOrderBook("TATA", "INR")
	prefill(ob, 100)
	price := decimal.NewFromInt(1050)
	qty := decimal.NewFromInt(10)
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		ob.AddOrder(Order{ID: fmt.Sprintf("m-%d", i), UserID: "m", Side: Sell, Price: price, Quantity: qty, Filled: decimal.Zero})
		ob.AddOrder(Order{ID: fmt.Sprintf("t-%d", i), UserID: "t", Side: Buy, Price: price, Quantity: qty, Filled: decimal.Zero})
	}
}

// BenchmarkCancel measures lookup and removal from the middle of a level
func BenchmarkCancel(b *testing.B) {
	ob := NewOrderBook("TATA", "INR")
	ids := make([]string, b.N)
	for i := 0; i < b.N; i++ {
		ids[i] = fmt.Sprintf("order-%d", i)
		ob.AddOrder(Order{
			ID: ids[i], UserID: "u", Side: Buy,
			Price: decimal.NewFromInt(int64(1000 + i%1000)), Quantity: decimal.NewFromInt(1), Filled: decimal.Zero,
		})
	}
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		ob.Cancel(ids[i])
	}
}

// BenchmarkDepth measures the aggregated depth view on a 200 level book
func BenchmarkDepth(b *testing.B) {
	ob := NewOrderBook("TATA", "INR")
	prefill(ob, 100)
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		_ = ob.Depth()
	}
}
