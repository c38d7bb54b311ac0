package model

import "testing"

func TestScheduleJobValidate(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name    string
		job     ScheduleJob
		wantErr bool
	}{
		{"system interval", ScheduleJob{Name: "a", Source: SourceSystem, SysCode: "prune", JobType: JobTypeInterval, Interval: 8, Status: JobOnline}, false},
		{"user cron", ScheduleJob{Name: "b", Source: SourceUser, JobType: JobTypeCron, Expression: "*/5 * * * * *", Status: JobOffline}, false},
		{"system without sys_code", ScheduleJob{Name: "c", Source: SourceSystem, JobType: JobTypeInterval, Interval: 8, Status: JobOnline}, true},
		{"user with sys_code", ScheduleJob{Name: "d", Source: SourceUser, SysCode: "x", JobType: JobTypeInterval, Interval: 8, Status: JobOnline}, true},
		{"cron with interval", ScheduleJob{Name: "e", Source: SourceUser, JobType: JobTypeCron, Expression: "* * * * * *", Interval: 3, Status: JobOnline}, true},
		{"interval with expression", ScheduleJob{Name: "f", Source: SourceUser, JobType: JobTypeInterval, Interval: 3, Expression: "x", Status: JobOnline}, true},
		{"zero interval", ScheduleJob{Name: "g", Source: SourceUser, JobType: JobTypeInterval, Status: JobOnline}, true},
		{"unknown job type", ScheduleJob{Name: "h", Source: SourceUser, JobType: 9, Status: JobOnline}, true},
		{"missing name", ScheduleJob{Source: SourceUser, JobType: JobTypeInterval, Interval: 1, Status: JobOnline}, true},
		{"unknown status", ScheduleJob{Name: "i", Source: SourceUser, JobType: JobTypeInterval, Interval: 1}, true},
	}
	for _, tc := range cases {
		err := tc.job.Validate()
		if (err != nil) != tc.wantErr {
			t.Fatalf("%s: err=%v wantErr=%v", tc.name, err, tc.wantErr)
		}
	}
}

func TestEnumStrings(t *testing.T) {
	t.Parallel()
	if RunFailed.String() != "failed" || !RunFailed.Terminal() || RunRunning.Terminal() {
		t.Fatalf("run status helpers broken")
	}
	if EventRemoved.String() != "removed" || JobTypeCron.String() != "cron" || SourceUser.String() != "user" {
		t.Fatalf("enum strings broken")
	}
	if JobStatus(7).String() != "status(7)" {
		t.Fatalf("unknown status string=%q", JobStatus(7).String())
	}
}
