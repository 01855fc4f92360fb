// Package integration provides a reusable wiring layer for embedding the
// Mister Echo completion pipeline into third-party Go programs.
//
// It resolves the completion client, the model catalog, and optional
// request inspect dumps from the same configuration keys the misterecho
// command uses.
//
// Configuration is explicit via Config.Set(...) / Config.Overrides.
// The embedding host owns env/config-file loading and passes resolved values in.
//
// Note: this package currently uses the process-global Viper instance.
package integration
