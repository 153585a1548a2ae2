package main

import "testing"

func TestRootCmd_ParsesDatabaseFlags(t *testing.T) {
	rootCmd.SetArgs([]string{
		"--database", "postgres",
		"--postgres-url", "postgres://localhost/test",
		"--version",
	})
	defer rootCmd.SetArgs(nil)

	if err := rootCmd.Flags().Parse([]string{"--database", "postgres", "--postgres-url", "postgres://localhost/test"}); err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}
	if dbBackend != "postgres" {
		t.Errorf("dbBackend = %q, want %q", dbBackend, "postgres")
	}
	if dbPostgres != "postgres://localhost/test" {
		t.Errorf("dbPostgres = %q, want %q", dbPostgres, "postgres://localhost/test")
	}
}

func TestRun_VersionFlagExitsWithoutLoadingConfig(t *testing.T) {
	versionFlag = true
	defer func() { versionFlag = false }()

	if err := run(rootCmd, nil); err != nil {
		t.Fatalf("run() with --version returned error: %v", err)
	}
}
