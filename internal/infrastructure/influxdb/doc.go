// Package influxdb records relay metrics in InfluxDB v2.
//
// Three measurements are written:
//   - bot_commands: one point per dispatched command, tagged by command,
//     source and outcome, with the handling time
//   - device_heartbeats: online state and queue depth per heartbeat
//   - fleet: periodic device totals
//
// Writes are batched and non-blocking (batch_size, flush_interval from
// config). Asynchronous write errors go to the SetOnError callback.
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteCommand("list", "bot", "ok", elapsed)
package influxdb
