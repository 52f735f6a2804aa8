// Command rwdemo drives an asyncrw.RWLock with a mix of readers and
// writers and prints a timestamped trace of when each one starts and
// ends.
//
// The request mix is a pattern of R and W letters, one per request,
// issued in order. The default RRWWR starts two readers at once,
// queues two writers behind them and a reader behind the writers.
//
// Flags can also be set through RWDEMO_<FLAG> environment variables
// or a .env file, e.g. RWDEMO_HOLD=250ms.
package main

import "os"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
