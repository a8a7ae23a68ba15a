package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"sessiongate/internal/devengine"
	"sessiongate/pkg/logger"
)

func main() {
	var storeDir string
	var auditDir string
	flag.StringVar(&storeDir, "store", "", "session database dir to list (engine must not be running)")
	flag.StringVar(&auditDir, "audit", "", "audit dir path to attach")
	flag.Parse()
	if storeDir == "" && auditDir == "" {
		fmt.Fprintln(os.Stderr, "one of --store or --audit required")
		os.Exit(2)
	}
	logger.Init()

	if auditDir != "" {
		fmt.Fprintf(os.Stdout, "calling AttachAuditFileSink(%s)\n", auditDir)
		if err := logger.AttachAuditFileSink(auditDir); err != nil {
			fmt.Fprintf(os.Stdout, "AttachAuditFileSink returned error: %v\n", err)
			os.Exit(1)
		}
		// print where audit.log would be
		fmt.Fprintf(os.Stdout, "AttachAuditFileSink succeeded; audit file path: %s\n", filepath.Join(auditDir, "audit.log"))
	}

	if storeDir != "" {
		st, err := devengine.OpenPebbleStore(storeDir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "open store: %v\n", err)
			os.Exit(1)
		}
		defer st.Close()

		now := time.Now()
		n := 0
		err = st.Each(func(token string, rec devengine.Record) error {
			n++
			state := "live"
			if rec.Expired(now) {
				state = "expired"
			}
			who := rec.Email
			if who == "" {
				who = rec.Name
			}
			fmt.Fprintf(os.Stdout, "%-8s %s user=%q roles=%v expires=%s\n",
				state, token, who, rec.Roles, rec.Expires.Format(time.RFC3339))
			return nil
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "list sessions: %v\n", err)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stdout, "%d session(s)\n", n)
	}
}
