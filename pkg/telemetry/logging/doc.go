// Package logging builds the process-wide slog logger.
//
// # Usage
//
//	logger, err := logging.Setup(cfg.Telemetry.Logging, os.Stderr)
//	if err != nil {
//	    return err
//	}
//	logger.Info("exportd started")
//
// Components take slog.Default().With("component", "export.<name>") and
// enrich it per run with FromContext, which adds the process, deployment and
// requester ids carried by the context.
//
// # Redaction
//
// Every attribute passes through the Redactor:
//
//   - keys naming secrets (password, token, access_key) are replaced entirely
//   - emails and phone numbers in values are masked
//   - presigned URL signatures and connection-string passwords are masked
package logging
