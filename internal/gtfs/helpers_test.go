package gtfs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bilbao-transit/gtfsjson/internal/feed"
)

// writeFeed writes each table into dir as CSV text.
func writeFeed(t *testing.T, dir string, tables map[feed.TableName]string) {
	t.Helper()
	for name, content := range tables {
		require.NoError(t, os.WriteFile(filepath.Join(dir, string(name)), []byte(content), 0o644))
	}
}

func rows(records ...feed.Record) feed.Table {
	return feed.Table(records)
}

// bilbaoFeed is a small Line 1 / Line 3 network used across tests.
func bilbaoFeed() map[feed.TableName]string {
	return map[feed.TableName]string{
		feed.Agency: "agency_id,agency_name,agency_url,agency_timezone\n" +
			"MB,Metro Bilbao,https://www.metrobilbao.eus,Europe/Madrid\n",
		feed.Stops: "stop_id,stop_name,stop_lat,stop_lon\n" +
			"ETX,Etxebarri,43.2470,-2.8930\n" +
			"CAV,Casco Viejo,43.2590,-2.9230\n" +
			"DEU,Deusto,43.2710,-2.9470\n" +
			"PLE,Plentzia,43.4050,-2.9480\n" +
			"KAB,Kabiezes,43.3270,-3.0330\n" +
			"BAS,Basauri,43.2370,-2.8850\n" +
			"901,1 Deusto andén,43.2711,-2.9471\n",
		feed.Routes: "route_id,route_short_name,route_long_name,route_color,route_text_color\n" +
			"L1,L1,Etxebarri - Plentzia,F26522,\n" +
			"L2,L2,Basauri - Kabiezes,,\n",
		feed.Shapes: "shape_id,shape_pt_lat,shape_pt_lon,shape_pt_sequence\n" +
			"SH_L1,43.2590,-2.9230,2\n" +
			"SH_L1,43.2470,-2.8930,1\n" +
			"SH_L1,43.2710,-2.9470,3\n" +
			"SH_L1,43.4050,-2.9480,4\n",
		feed.Trips: "route_id,service_id,trip_id,shape_id,direction_id\n" +
			"L1,WD,T2,SH_L1,0\n" +
			"L1,WD,T1,SH_L1,0\n" +
			"L1,WD,T3,SH_L1,1\n" +
			"L2,WD,T4,,0\n" +
			"L1,WD,T_EMPTY,SH_L1,0\n",
		feed.StopTimes: "trip_id,arrival_time,departure_time,stop_id,stop_sequence,shape_dist_traveled\n" +
			"T1,08:00:00,08:00:00,ETX,1,\n" +
			"T1,08:04:00,08:04:30,CAV,2,\n" +
			"T1,08:30:00,08:30:00,PLE,3,\n" +
			"T2,08:10:00,08:10:00,ETX,1,\n" +
			"T2,08:40:00,08:40:00,PLE,2,\n" +
			"T3,25:30:00,25:30:00,DEU,2,\n" +
			"T3,25:00:00,25:00:00,PLE,1,\n" +
			"T3,26:00:00,26:00:00,ETX,3,\n" +
			"T4,07:00:00,07:00:00,BAS,1,0\n" +
			"T4,07:20:00,07:20:00,KAB,2,9500\n",
		feed.Calendar: "service_id,monday,tuesday,wednesday,thursday,friday,saturday,sunday,start_date,end_date\n" +
			"WD,1,1,1,1,1,0,0,20260101,20261231\n",
		feed.CalendarDates: "service_id,date,exception_type\n" +
			"WD,20261225,2\n",
	}
}
